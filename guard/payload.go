package guard

import "github.com/fxamacker/cbor/v2"

// envelope versions the payload at rest so corruption and format drift are
// caught before bytes reach the caller.
type envelope struct {
	Version int    `cbor:"v"`
	Secret  []byte `cbor:"secret"`
}

const envelopeVersion = 1

func encodePayload(credential []byte) ([]byte, error) {
	return cbor.Marshal(envelope{Version: envelopeVersion, Secret: credential})
}

func decodePayload(payload []byte) ([]byte, error) {
	var env envelope
	if err := cbor.Unmarshal(payload, &env); err != nil {
		return nil, ErrPayloadCorrupt
	}
	if env.Version != envelopeVersion || env.Secret == nil {
		return nil, ErrPayloadCorrupt
	}
	return env.Secret, nil
}
