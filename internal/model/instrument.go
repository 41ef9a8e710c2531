package model

// Instrument is the underlying the engine trades signals on.
type Instrument struct {
	Token         string `json:"token"`
	Exchange      string `json:"exchange"`
	TradingSymbol string `json:"trading_symbol"`
	Name          string `json:"name"`
	LotSize       int    `json:"lot_size"`
}

// Nifty50 is the NSE index token used by SmartConnect.
var Nifty50 = Instrument{
	Token:         "99926000",
	Exchange:      "NSE",
	TradingSymbol: "NIFTY",
	Name:          "NIFTY 50",
	LotSize:       75,
}

// Key returns a unique key for this instrument: "exchange:token".
func (i *Instrument) Key() string {
	return i.Exchange + ":" + i.Token
}
