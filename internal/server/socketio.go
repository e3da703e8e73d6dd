package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Socket.IO v5 packets ride inside Engine.IO message packets. Only the
// default namespace and text packets are served.

const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioAck          = '3'
	sioConnectError = '4'
)

const defaultNamespace = "/"

var errBinaryPacket = errors.New("binary packets are not supported")

type sioPacket struct {
	Type      byte
	Namespace string
	AckID     string
	Data      json.RawMessage
}

// decodePacket parses `<type>[/<nsp>,][<ack id>][<json>]`.
func decodePacket(s string) (sioPacket, error) {
	if s == "" {
		return sioPacket{}, errors.New("empty packet")
	}
	p := sioPacket{Type: s[0], Namespace: defaultNamespace}
	switch p.Type {
	case sioConnect, sioDisconnect, sioEvent, sioAck, sioConnectError:
	case '5', '6':
		return p, errBinaryPacket
	default:
		return p, fmt.Errorf("unknown packet type %q", p.Type)
	}

	rest := s[1:]
	if strings.HasPrefix(rest, "/") {
		if i := strings.IndexByte(rest, ','); i >= 0 {
			p.Namespace, rest = rest[:i], rest[i+1:]
		} else {
			p.Namespace, rest = rest, ""
		}
	}
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	p.AckID, rest = rest[:i], rest[i:]
	if rest != "" {
		if !json.Valid([]byte(rest)) {
			return p, errors.New("invalid packet payload")
		}
		p.Data = json.RawMessage(rest)
	}
	return p, nil
}

// eventArgs splits an event payload `["name", arg]` into its name and first
// argument.
func eventArgs(data json.RawMessage) (string, json.RawMessage, error) {
	var args []json.RawMessage
	if err := json.Unmarshal(data, &args); err != nil || len(args) == 0 {
		return "", nil, errors.New("event payload is not a non-empty array")
	}
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return "", nil, errors.New("event name is not a string")
	}
	if len(args) < 2 {
		return name, nil, nil
	}
	return name, args[1], nil
}

// encodeEvent returns the Engine.IO packet carrying a Socket.IO event.
func encodeEvent(event string, data any) (string, error) {
	b, err := json.Marshal([]any{event, data})
	if err != nil {
		return "", err
	}
	return string(eioMessage) + string(sioEvent) + string(b), nil
}

func encodeConnect(socketID string) string {
	b, _ := json.Marshal(map[string]string{"sid": socketID})
	return string(eioMessage) + string(sioConnect) + string(b)
}

func encodeConnectError(nsp, message string) string {
	b, _ := json.Marshal(map[string]string{"message": message})
	return string(eioMessage) + string(sioConnectError) + nsp + "," + string(b)
}

func encodeAck(ackID string) string {
	return string(eioMessage) + string(sioAck) + ackID + "[]"
}
