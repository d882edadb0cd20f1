// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"
	"time"

	"github.com/OpenDDS/OpenDDS-sub024/lib/codec"
)

// Frame kinds on a link's byte stream.
const (
	frameHello uint8 = 1
	frameData  uint8 = 2
)

// Operation is what a Message does to the instance it names.
type Operation uint8

const (
	OperationWrite Operation = iota + 1
	OperationRegister
	OperationUnregister
	OperationDispose
)

func (o Operation) String() string {
	switch o {
	case OperationWrite:
		return "write"
	case OperationRegister:
		return "register"
	case OperationUnregister:
		return "unregister"
	case OperationDispose:
		return "dispose"
	default:
		return fmt.Sprintf("Operation(%d)", uint8(o))
	}
}

// Message is one sample operation carried by a link. Payload is the
// encoded sample; the transport never looks inside it.
type Message struct {
	Domain      int       `cbor:"domain"`
	Topic       string    `cbor:"topic"`
	Partition   string    `cbor:"partition,omitempty"`
	Operation   Operation `cbor:"operation"`
	Timestamp   time.Time `cbor:"timestamp"`
	Publication uint64    `cbor:"publication"`
	Sequence    uint64    `cbor:"sequence"`
	Payload     []byte    `cbor:"payload"`
}

// Deliverer receives every Message that arrives on any link of a
// Transport. Deliver runs on the link's receive goroutine, so a slow
// Deliverer holds back that link only.
type Deliverer interface {
	Deliver(message Message, remoteAddress string)
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(message Message, remoteAddress string)

// Deliver calls f.
func (f DelivererFunc) Deliver(message Message, remoteAddress string) { f(message, remoteAddress) }

// encodeMessage turns a message into the bytes of one data frame.
func encodeMessage(message Message, compression codec.Compression) ([]byte, error) {
	payload, err := codec.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	frame, err := codec.SealFrame(frameData, payload, compression)
	if err != nil {
		return nil, fmt.Errorf("sealing frame: %w", err)
	}
	return codec.Marshal(frame)
}

// decodeMessage opens a data frame and decodes the message inside.
func decodeMessage(frame codec.Frame) (Message, error) {
	payload, err := frame.Open()
	if err != nil {
		return Message{}, err
	}
	var message Message
	if err := codec.Unmarshal(payload, &message); err != nil {
		return Message{}, fmt.Errorf("decoding message: %w", err)
	}
	return message, nil
}
