package model

import "time"

// PriceBar is one end-of-day OHLCV bar. A bar is identified by
// (Symbol, Source, BarDate); writes are upserts against that identity.
type PriceBar struct {
	Symbol   string    `db:"symbol" json:"symbol"`
	Source   string    `db:"source" json:"source"`
	BarDate  time.Time `db:"bar_date" json:"bar_date"`
	Open     *float64  `db:"open" json:"open"`
	High     *float64  `db:"high" json:"high"`
	Low      *float64  `db:"low" json:"low"`
	Close    *float64  `db:"close" json:"close"`
	Volume   *int64    `db:"volume" json:"volume"`
	AdjClose *float64  `db:"adj_close" json:"adj_close"`
}

// PriceBarIntra is one intraday OHLCV bar. IntervalSec partitions the data
// by resampling granularity so multiple granularities can coexist.
type PriceBarIntra struct {
	Symbol      string    `db:"symbol" json:"symbol"`
	Source      string    `db:"source" json:"source"`
	BarTime     time.Time `db:"bar_time" json:"bar_time"`
	IntervalSec int       `db:"interval_sec" json:"interval_sec"`
	Open        *float64  `db:"open" json:"open"`
	High        *float64  `db:"high" json:"high"`
	Low         *float64  `db:"low" json:"low"`
	Close       *float64  `db:"close" json:"close"`
	Volume      *int64    `db:"volume" json:"volume"`
}
