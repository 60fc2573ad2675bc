package ack

import "github.com/ValerySidorin/ackd/model"

// Acker accepts acknowledgements for received messages. The Acknowledger is
// the production implementation.
type Acker interface {
	Ack(subscription string, ids ...string)
	Nack(subscription string, ids ...string)
}

// Message is a received message bound to the Acker that settles it.
type Message struct {
	msg          model.Message
	ackID        string
	subscription string
	acker        Acker
}

func NewMessage(msg model.Message, ackID, subscription string, acker Acker) *Message {
	return &Message{
		msg:          msg,
		ackID:        ackID,
		subscription: subscription,
		acker:        acker,
	}
}

func (m *Message) Message() model.Message {
	return m.msg
}

func (m *Message) AckID() string {
	return m.ackID
}

func (m *Message) Subscription() string {
	return m.subscription
}

// Ack and Nack may both be called; the later one to reach the Acker before
// the token is dispatched wins.
func (m *Message) Ack() {
	m.acker.Ack(m.subscription, m.ackID)
}

func (m *Message) Nack() {
	m.acker.Nack(m.subscription, m.ackID)
}
