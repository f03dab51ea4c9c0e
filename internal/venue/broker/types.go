package broker

// orderRequest is the wire shape for opening a position.
type orderRequest struct {
	ClientID   string  `json:"client_id"`
	Instrument string  `json:"instrument"`
	Side       string  `json:"side"`
	Size       float64 `json:"size"`
	Price      float64 `json:"price,omitempty"`
}

// stopRequest moves a position's protective stop.
type stopRequest struct {
	Stop float64 `json:"stop"`
}

// closeRequest closes a fraction of a position at market.
type closeRequest struct {
	Fraction float64 `json:"fraction"`
}

// positionResponse is the broker's acknowledgment for order, stop, and close
// calls. Price is the authoritative fill or stop level as accepted.
type positionResponse struct {
	PositionID string  `json:"position_id"`
	Status     string  `json:"status"`
	Price      float64 `json:"price"`
}

// apiError is the broker's error envelope.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
