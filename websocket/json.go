package websocket

import "encoding/json"

// WriteJSON marshals v and sends it as a Text message.
func (c *Conn) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Send(Text(string(data)))
}

// ReadJSON reads the next message and unmarshals its payload into v. The
// caller should check msg.Type; a Close or Ping/Pong message carries no
// JSON-decodable Data in the general case.
func (c *Conn) ReadJSON(v any) (Message, error) {
	msg, err := c.Read()
	if err != nil {
		return msg, err
	}
	if msg.Type != TextMessage && msg.Type != BinaryMessage {
		return msg, nil
	}
	return msg, json.Unmarshal(msg.Data, v)
}
