package socketio

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// engine.io v4 framing: one leading digit per websocket text frame.
type enginePacketType byte

const (
	engineOpen    enginePacketType = '0'
	engineClose   enginePacketType = '1'
	enginePing    enginePacketType = '2'
	enginePong    enginePacketType = '3'
	engineMessage enginePacketType = '4'
)

// socket.io packet types carried inside engine.io message frames.
type socketPacketType byte

const (
	socketConnect socketPacketType = '0'
	socketEvent   socketPacketType = '2'
	socketAck     socketPacketType = '3'
)

type socketPacket struct {
	Type      socketPacketType
	Namespace string
	ID        *int
	Event     string            // set for event packets
	Args      []json.RawMessage // event args after the name, or ack args
	Raw       string            // payload after the type byte, for connect auth
}

func splitNamespace(s string) (namespace, rest string) {
	if !strings.HasPrefix(s, "/") {
		return "/", s
	}
	comma := strings.IndexByte(s, ',')
	if comma == -1 {
		return "/", s
	}
	return s[:comma], s[comma+1:]
}

func splitIDPrefix(s string) (id *int, rest string) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return nil, s
	}
	v, err := strconv.Atoi(s[:i])
	if err != nil {
		return nil, s
	}
	return &v, s[i:]
}

func parseSocketPacket(payload string) (socketPacket, error) {
	if payload == "" {
		return socketPacket{}, errors.New("empty payload")
	}

	pkt := socketPacket{Type: socketPacketType(payload[0])}
	switch pkt.Type {
	case socketConnect:
		pkt.Namespace, pkt.Raw = splitNamespace(payload[1:])
		return pkt, nil
	case socketEvent, socketAck:
	default:
		return socketPacket{}, errors.New("unsupported packet type")
	}

	ns, rest := splitNamespace(payload[1:])
	id, rest := splitIDPrefix(rest)
	pkt.Namespace = ns
	pkt.ID = id
	if !strings.HasPrefix(rest, "[") {
		return socketPacket{}, errors.New("invalid packet payload")
	}

	var arr []json.RawMessage
	if err := json.Unmarshal([]byte(rest), &arr); err != nil {
		return socketPacket{}, err
	}

	if pkt.Type == socketAck {
		if id == nil {
			return socketPacket{}, errors.New("missing ack id")
		}
		pkt.Args = arr
		return pkt, nil
	}

	if len(arr) == 0 {
		return socketPacket{}, errors.New("missing event name")
	}
	if err := json.Unmarshal(arr[0], &pkt.Event); err != nil {
		return socketPacket{}, errors.New("invalid event name")
	}
	pkt.Args = arr[1:]
	return pkt, nil
}

func writePrefix(b *strings.Builder, typ socketPacketType, namespace string, id *int) {
	b.WriteByte(byte(typ))
	if namespace != "" && namespace != "/" {
		b.WriteString(namespace)
		b.WriteByte(',')
	}
	if id != nil {
		b.WriteString(strconv.Itoa(*id))
	}
}

func buildEventPacket(namespace string, id *int, event string, args ...any) (string, error) {
	arr := make([]any, 0, 1+len(args))
	arr = append(arr, event)
	arr = append(arr, args...)
	data, err := json.Marshal(arr)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	writePrefix(&b, socketEvent, namespace, id)
	b.Write(data)
	return b.String(), nil
}

func buildAckPacket(namespace string, id int, args ...any) (string, error) {
	if args == nil {
		args = make([]any, 0)
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	writePrefix(&b, socketAck, namespace, &id)
	b.Write(data)
	return b.String(), nil
}

func buildConnectPacket(namespace, sid string) (string, error) {
	data, err := json.Marshal(map[string]string{"sid": sid})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	writePrefix(&b, socketConnect, namespace, nil)
	b.Write(data)
	return b.String(), nil
}
