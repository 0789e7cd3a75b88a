package ws

import "encoding/json"

// wireOp is one subscribe/unsubscribe frame in the default JSON encoder's
// wire format: {"op":"subscribe","channel":"book","symbol":"BTCUSD"}.
type wireOp struct {
	Op      string `json:"op"`
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
}

// wireData is the routing header every inbound data frame carries
// alongside its domain-specific fields, e.g.
// {"channel":"book","symbol":"BTCUSD","update_id":2,"bids":[...]}.
// Route only looks at these two fields; downstream consumers (e.g.
// marketdata.DeltaPayload) unmarshal the same raw bytes for the rest.
// Non-data frames (acks, heartbeats) omit "channel" or "symbol" and
// Route reports ok=false.
type wireData struct {
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
}

// JSONEncoder is the default venue-neutral Encoder: one subscribe/
// unsubscribe op per (channel, symbol), and data frames keyed by the
// same two fields. Venues with their own wire shape (Kraken's
// channelID/channelName scheme, for instance) supply their own Encoder
// instead.
type JSONEncoder struct{}

// EncodeSubscribe implements Encoder.
func (JSONEncoder) EncodeSubscribe(subs []Subscription) ([]byte, error) {
	return encodeOps("subscribe", subs)
}

// EncodeUnsubscribe implements Encoder.
func (JSONEncoder) EncodeUnsubscribe(subs []Subscription) ([]byte, error) {
	return encodeOps("unsubscribe", subs)
}

func encodeOps(op string, subs []Subscription) ([]byte, error) {
	ops := make([]wireOp, len(subs))
	for i, s := range subs {
		ops[i] = wireOp{Op: op, Channel: s.Channel, Symbol: s.Symbol}
	}
	if len(ops) == 1 {
		return json.Marshal(ops[0])
	}
	return json.Marshal(ops)
}

// Route implements Encoder.
func (JSONEncoder) Route(raw []byte) (Subscription, bool) {
	var d wireData
	if err := json.Unmarshal(raw, &d); err != nil {
		return Subscription{}, false
	}
	if d.Channel == "" || d.Symbol == "" {
		return Subscription{}, false
	}
	return Subscription{Channel: d.Channel, Symbol: d.Symbol}, true
}
