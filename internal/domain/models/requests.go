package models

// Requests for the engine HTTP endpoints. Defined in domain for consistency
// and reuse; bound from query params, defaulted, then validated.

type ForecastRequest struct {
	Symbol   string  `query:"symbol" json:"symbol" validate:"required"`
	Lambda   float64 `query:"lambda" json:"lambda" default:"0.94" validate:"gt=0,lt=1"`
	Horizon  int     `query:"horizon" json:"horizon" default:"1" validate:"oneof=1 2 3 5"`
	Coverage float64 `query:"coverage" json:"coverage" default:"0.95" validate:"gt=0,lt=1"`
	Biased   bool    `query:"biased" json:"biased"`
	N        int     `query:"n" json:"n" default:"756" validate:"gte=40,lte=5000"`
}

type VolatilityRequest struct {
	Symbol    string  `query:"symbol" json:"symbol" validate:"required"`
	Window    int     `query:"window" json:"window" default:"60" validate:"gte=10,lte=1000"`
	Horizon   int     `query:"horizon" json:"horizon" default:"1" validate:"oneof=1 2 3 5"`
	GbmLambda float64 `query:"gbmLambda" json:"gbmLambda" validate:"gte=0,lt=1"`
	Dof       float64 `query:"dof" json:"dof" default:"6" validate:"gt=2"`
	N         int     `query:"n" json:"n" default:"756" validate:"gte=40,lte=5000"`
}

type SimulateRequest struct {
	Symbol        string  `query:"symbol" json:"symbol" validate:"required"`
	Lambda        float64 `query:"lambda" json:"lambda" default:"0.94" validate:"gt=0,lt=1"`
	Horizon       int     `query:"horizon" json:"horizon" default:"1" validate:"oneof=1 2 3 5"`
	Coverage      float64 `query:"coverage" json:"coverage" default:"0.95" validate:"gt=0,lt=1"`
	Biased        bool    `query:"biased" json:"biased"`
	InitialEquity float64 `query:"equity" json:"equity" default:"10000" validate:"gt=0"`
	Leverage      float64 `query:"leverage" json:"leverage" default:"5" validate:"gte=1,lte=30"`
	PositionFrac  float64 `query:"positionFraction" json:"positionFraction" default:"0.25" validate:"gt=0,lte=1"`
	ThresholdBps  float64 `query:"thresholdBps" json:"thresholdBps" default:"10" validate:"gte=0"`
	CostBps       float64 `query:"costBps" json:"costBps" default:"5" validate:"gte=0"`
	SwapBps       float64 `query:"swapBps" json:"swapBps" default:"1" validate:"gte=0"`
	SignalRule    string  `query:"signalRule" json:"signalRule" default:"bps" validate:"oneof=bps z"`
	ZMode         string  `query:"zMode" json:"zMode" default:"auto" validate:"oneof=auto manual optimize"`
	TrainFrac     float64 `query:"trainFraction" json:"trainFraction" default:"0.7" validate:"gt=0,lt=1"`
	N             int     `query:"n" json:"n" default:"756" validate:"gte=40,lte=5000"`
}

type OptimizeRequest struct {
	Symbol  string  `query:"symbol" json:"symbol" validate:"required"`
	Lambda  float64 `query:"lambda" json:"lambda" default:"0.94" validate:"gt=0,lt=1"`
	Horizon int     `query:"horizon" json:"horizon" default:"1" validate:"oneof=1 2 3 5"`
	N       int     `query:"n" json:"n" default:"756" validate:"gte=60,lte=5000"`
}

type CompareRequest struct {
	Symbol string `query:"symbol" json:"symbol"`
}
