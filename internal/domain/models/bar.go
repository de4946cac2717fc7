package models

// Bar is the wire form of one daily OHLCV row as it moves through the
// ingestion pipeline (feed -> Kafka -> ClickHouse). Date is "YYYY-MM-DD".
type Bar struct {
	Symbol string  `json:"symbol"`
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}
