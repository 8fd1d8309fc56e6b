package model

import "time"

// TiingoDailyBar is one record from the Tiingo EOD prices endpoint.
// Fields the provider omits stay nil.
type TiingoDailyBar struct {
	Date     time.Time `json:"date"`
	Open     *float64  `json:"open"`
	High     *float64  `json:"high"`
	Low      *float64  `json:"low"`
	Close    *float64  `json:"close"`
	Volume   *int64    `json:"volume"`
	AdjClose *float64  `json:"adjClose"`
}

// TiingoIntradayBar is one record from the Tiingo IEX intraday endpoint.
type TiingoIntradayBar struct {
	Date   time.Time `json:"date"`
	Open   *float64  `json:"open"`
	High   *float64  `json:"high"`
	Low    *float64  `json:"low"`
	Close  *float64  `json:"close"`
	Volume *int64    `json:"volume"`
}
