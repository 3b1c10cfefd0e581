package rumor

import (
	"sort"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Envelope is the wire wrapper for a rumor: the kind tag, the originating
// member, and the variant payload. Exactly one of the variant fields is
// set after a successful decode.
//
// The schema is protobuf wire format, emitted by hand so encoding is
// deterministic: fields in ascending tag order, votes sorted by member
// id. Field 4 carries a reserved repeated tag list that is skipped on
// read.
type Envelope struct {
	Type    Kind
	FromID  string
	Payload []byte

	Membership     *Membership
	Departure      *Departure
	Service        *Service
	ServiceConfig  *ServiceConfig
	ServiceFile    *ServiceFile
	Election       *Election
	ElectionUpdate *ElectionUpdate
}

const (
	envFieldType    = 1
	envFieldFromID  = 2
	envFieldPayload = 3
	envFieldTags    = 4
)

// DecodeEnvelope parses wire bytes into a typed envelope. Unknown fields
// are skipped; an unknown kind tag or a missing from-id fail with a
// protocol mismatch.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var (
		kind    uint64
		fromID  []byte
		hasFrom bool
		payload []byte
	)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, errors.WithStack(&ProtocolMismatchError{Field: "envelope"})
		}
		data = data[n:]
		switch num {
		case envFieldType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, errors.WithStack(&ProtocolMismatchError{Field: "type"})
			}
			kind = v
			data = data[n:]
		case envFieldFromID:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, errors.WithStack(&ProtocolMismatchError{Field: "from-id"})
			}
			fromID = v
			hasFrom = true
			data = data[n:]
		case envFieldPayload:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, errors.WithStack(&ProtocolMismatchError{Field: "payload"})
			}
			payload = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, errors.WithStack(&ProtocolMismatchError{Field: "envelope"})
			}
			data = data[n:]
		}
	}
	if kind < uint64(KindMember) || kind > uint64(KindElectionUpdate) {
		return nil, errors.WithStack(&ProtocolMismatchError{Field: "type"})
	}
	if !hasFrom || len(fromID) == 0 {
		return nil, errors.WithStack(&ProtocolMismatchError{Field: "from-id"})
	}
	env := &Envelope{
		Type:    Kind(kind),
		FromID:  string(fromID),
		Payload: payload,
	}
	var err error
	switch env.Type {
	case KindMember:
		env.Membership, err = decodeMembership(env.FromID, payload)
	case KindDeparture:
		env.Departure, err = decodeDeparture(env.FromID, payload)
	case KindService:
		env.Service, err = decodeService(env.FromID, payload)
	case KindServiceConfig:
		env.ServiceConfig, err = decodeServiceConfig(env.FromID, payload)
	case KindServiceFile:
		env.ServiceFile, err = decodeServiceFile(env.FromID, payload)
	case KindElection:
		var e *Election
		e, err = decodeElection(env.FromID, payload)
		env.Election = e
	case KindElectionUpdate:
		var e *Election
		e, err = decodeElection(env.FromID, payload)
		if e != nil {
			env.ElectionUpdate = &ElectionUpdate{Election: *e}
		}
	}
	if err != nil {
		return nil, err
	}
	return env, nil
}

// Encode emits the envelope deterministically: the same in-memory value
// always yields the same bytes.
func (e *Envelope) Encode() ([]byte, error) {
	payload, err := e.payloadBytes()
	if err != nil {
		return nil, err
	}
	b := protowire.AppendTag(nil, envFieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Type))
	b = appendStringField(b, envFieldFromID, e.FromID)
	b = protowire.AppendTag(b, envFieldPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, payload)
	return b, nil
}

func (e *Envelope) payloadBytes() ([]byte, error) {
	switch e.Type {
	case KindMember:
		return encodeMembership(e.Membership), nil
	case KindDeparture:
		return encodeDeparture(e.Departure), nil
	case KindService:
		return encodeService(e.Service), nil
	case KindServiceConfig:
		return encodeServiceConfig(e.ServiceConfig), nil
	case KindServiceFile:
		return encodeServiceFile(e.ServiceFile), nil
	case KindElection:
		return encodeElection(e.Election), nil
	case KindElectionUpdate:
		return encodeElection(&e.ElectionUpdate.Election), nil
	}
	return nil, errors.WithStack(&ProtocolMismatchError{Field: "type"})
}

func appendStringField(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendUintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBoolField(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, 1)
}

// scanFields walks a payload's fields, dispatching each to the variant's
// handler and skipping anything unknown.
func scanFields(data []byte, field func(num protowire.Number, typ protowire.Type, data []byte) (int, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errors.WithStack(&ProtocolMismatchError{Field: "payload"})
		}
		data = data[n:]
		consumed, err := field(num, typ, data)
		if err != nil {
			return err
		}
		if consumed == 0 {
			consumed = protowire.ConsumeFieldValue(num, typ, data)
		}
		if consumed < 0 {
			return errors.WithStack(&ProtocolMismatchError{Field: "payload"})
		}
		data = data[consumed:]
	}
	return nil
}

func consumeString(data []byte) (string, int, error) {
	v, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return "", 0, errors.WithStack(&ProtocolMismatchError{Field: "payload"})
	}
	return string(v), n, nil
}

func consumeBytes(data []byte) ([]byte, int, error) {
	v, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return nil, 0, errors.WithStack(&ProtocolMismatchError{Field: "payload"})
	}
	return append([]byte(nil), v...), n, nil
}

func consumeUint(data []byte) (uint64, int, error) {
	v, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return 0, 0, errors.WithStack(&ProtocolMismatchError{Field: "payload"})
	}
	return v, n, nil
}

func encodeMembership(m *Membership) []byte {
	var b []byte
	b = appendStringField(b, 1, m.Member.ID)
	b = appendUintField(b, 2, m.Member.Incarnation)
	b = appendStringField(b, 3, m.Member.Address)
	b = appendUintField(b, 4, uint64(m.Member.SwimPort))
	b = appendUintField(b, 5, uint64(m.Member.GossipPort))
	b = appendUintField(b, 6, uint64(m.Health))
	b = appendStringField(b, 7, expirationToWire(m.Expiration))
	return b
}

func decodeMembership(fromID string, data []byte) (*Membership, error) {
	m := &Membership{FromID: fromID, Expiration: Forever()}
	err := scanFields(data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeString(data)
			m.Member.ID = v
			return n, err
		case 2:
			v, n, err := consumeUint(data)
			m.Member.Incarnation = v
			return n, err
		case 3:
			v, n, err := consumeString(data)
			m.Member.Address = v
			return n, err
		case 4:
			v, n, err := consumeUint(data)
			m.Member.SwimPort = int32(v)
			return n, err
		case 5:
			v, n, err := consumeUint(data)
			m.Member.GossipPort = int32(v)
			return n, err
		case 6:
			v, n, err := consumeUint(data)
			m.Health = Health(v)
			return n, err
		case 7:
			v, n, err := consumeString(data)
			if err != nil {
				return n, err
			}
			m.Expiration, err = expirationFromWire(v)
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func encodeDeparture(d *Departure) []byte {
	var b []byte
	b = appendStringField(b, 1, d.MemberID)
	b = appendStringField(b, 2, expirationToWire(d.Expiration))
	return b
}

func decodeDeparture(fromID string, data []byte) (*Departure, error) {
	d := &Departure{FromID: fromID, Expiration: Forever()}
	err := scanFields(data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeString(data)
			d.MemberID = v
			return n, err
		case 2:
			v, n, err := consumeString(data)
			if err != nil {
				return n, err
			}
			d.Expiration, err = expirationFromWire(v)
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func encodeService(s *Service) []byte {
	var b []byte
	b = appendStringField(b, 1, s.MemberID)
	b = appendStringField(b, 2, s.ServiceGroup)
	b = appendUintField(b, 3, s.Incarnation)
	b = appendStringField(b, 4, s.Pkg)
	b = appendBoolField(b, 5, s.Initialized)
	b = appendBytesField(b, 6, s.Sys)
	b = appendBytesField(b, 7, s.Cfg)
	b = appendBytesField(b, 8, s.Exported)
	b = appendStringField(b, 9, expirationToWire(s.Expiration))
	return b
}

func decodeService(fromID string, data []byte) (*Service, error) {
	s := &Service{FromID: fromID, Expiration: Forever()}
	err := scanFields(data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeString(data)
			s.MemberID = v
			return n, err
		case 2:
			v, n, err := consumeString(data)
			s.ServiceGroup = v
			return n, err
		case 3:
			v, n, err := consumeUint(data)
			s.Incarnation = v
			return n, err
		case 4:
			v, n, err := consumeString(data)
			s.Pkg = v
			return n, err
		case 5:
			v, n, err := consumeUint(data)
			s.Initialized = v != 0
			return n, err
		case 6:
			v, n, err := consumeBytes(data)
			s.Sys = v
			return n, err
		case 7:
			v, n, err := consumeBytes(data)
			s.Cfg = v
			return n, err
		case 8:
			v, n, err := consumeBytes(data)
			s.Exported = v
			return n, err
		case 9:
			v, n, err := consumeString(data)
			if err != nil {
				return n, err
			}
			s.Expiration, err = expirationFromWire(v)
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func encodeServiceConfig(sc *ServiceConfig) []byte {
	var b []byte
	b = appendStringField(b, 1, sc.ServiceGroup)
	b = appendUintField(b, 2, sc.Incarnation)
	b = appendBoolField(b, 3, sc.Encrypted)
	b = appendBytesField(b, 4, sc.Config)
	b = appendStringField(b, 5, expirationToWire(sc.Expiration))
	return b
}

func decodeServiceConfig(fromID string, data []byte) (*ServiceConfig, error) {
	sc := &ServiceConfig{FromID: fromID, Expiration: Forever()}
	err := scanFields(data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeString(data)
			sc.ServiceGroup = v
			return n, err
		case 2:
			v, n, err := consumeUint(data)
			sc.Incarnation = v
			return n, err
		case 3:
			v, n, err := consumeUint(data)
			sc.Encrypted = v != 0
			return n, err
		case 4:
			v, n, err := consumeBytes(data)
			sc.Config = v
			return n, err
		case 5:
			v, n, err := consumeString(data)
			if err != nil {
				return n, err
			}
			sc.Expiration, err = expirationFromWire(v)
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return sc, nil
}

func encodeServiceFile(sf *ServiceFile) []byte {
	var b []byte
	b = appendStringField(b, 1, sf.ServiceGroup)
	b = appendUintField(b, 2, sf.Incarnation)
	b = appendStringField(b, 3, sf.Filename)
	b = appendBytesField(b, 4, sf.Body)
	b = appendStringField(b, 5, expirationToWire(sf.Expiration))
	return b
}

func decodeServiceFile(fromID string, data []byte) (*ServiceFile, error) {
	sf := &ServiceFile{FromID: fromID, Expiration: Forever()}
	err := scanFields(data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeString(data)
			sf.ServiceGroup = v
			return n, err
		case 2:
			v, n, err := consumeUint(data)
			sf.Incarnation = v
			return n, err
		case 3:
			v, n, err := consumeString(data)
			sf.Filename = v
			return n, err
		case 4:
			v, n, err := consumeBytes(data)
			sf.Body = v
			return n, err
		case 5:
			v, n, err := consumeString(data)
			if err != nil {
				return n, err
			}
			sf.Expiration, err = expirationFromWire(v)
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return sf, nil
}

func encodeElection(e *Election) []byte {
	var b []byte
	b = appendStringField(b, 1, e.MemberID)
	b = appendStringField(b, 2, e.ServiceGroup)
	b = appendUintField(b, 3, e.Term)
	b = appendUintField(b, 4, e.Suitability)
	b = appendUintField(b, 5, uint64(e.Phase))
	// Votes are kept sorted by Vote, but a rumor built by hand may not
	// be, and encoding must not depend on that.
	votes := append([]string(nil), e.Votes...)
	sort.Strings(votes)
	for _, v := range votes {
		b = appendStringField(b, 6, v)
	}
	b = appendUintField(b, 7, e.Incarnation)
	b = appendStringField(b, 8, expirationToWire(e.Expiration))
	return b
}

func decodeElection(fromID string, data []byte) (*Election, error) {
	e := &Election{FromID: fromID, Expiration: Forever()}
	err := scanFields(data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeString(data)
			e.MemberID = v
			return n, err
		case 2:
			v, n, err := consumeString(data)
			e.ServiceGroup = v
			return n, err
		case 3:
			v, n, err := consumeUint(data)
			e.Term = v
			return n, err
		case 4:
			v, n, err := consumeUint(data)
			e.Suitability = v
			return n, err
		case 5:
			v, n, err := consumeUint(data)
			e.Phase = ElectionPhase(v)
			return n, err
		case 6:
			v, n, err := consumeString(data)
			if err != nil {
				return n, err
			}
			e.Votes = append(e.Votes, v)
			return n, nil
		case 7:
			v, n, err := consumeUint(data)
			e.Incarnation = v
			return n, err
		case 8:
			v, n, err := consumeString(data)
			if err != nil {
				return n, err
			}
			e.Expiration, err = expirationFromWire(v)
			return n, err
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (m *Membership) Encode() ([]byte, error) {
	return (&Envelope{Type: KindMember, FromID: m.FromID, Membership: m}).Encode()
}

func (d *Departure) Encode() ([]byte, error) {
	return (&Envelope{Type: KindDeparture, FromID: d.FromID, Departure: d}).Encode()
}

func (s *Service) Encode() ([]byte, error) {
	return (&Envelope{Type: KindService, FromID: s.FromID, Service: s}).Encode()
}

func (sc *ServiceConfig) Encode() ([]byte, error) {
	return (&Envelope{Type: KindServiceConfig, FromID: sc.FromID, ServiceConfig: sc}).Encode()
}

func (sf *ServiceFile) Encode() ([]byte, error) {
	return (&Envelope{Type: KindServiceFile, FromID: sf.FromID, ServiceFile: sf}).Encode()
}

func (e *Election) Encode() ([]byte, error) {
	return (&Envelope{Type: KindElection, FromID: e.FromID, Election: e}).Encode()
}

func (e *ElectionUpdate) Encode() ([]byte, error) {
	return (&Envelope{Type: KindElectionUpdate, FromID: e.FromID, ElectionUpdate: e}).Encode()
}
