package codec

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"rxchange/internal/credential"
)

// TestRoundTripProperty verifies decode(encode(c)) == c for generated
// credentials, and that canonical bytes survive the trip unchanged.
// Property: for all valid credentials, the wire format is lossless.
func TestRoundTripProperty(t *testing.T) {
	_, key, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := credential.NewSigner(key, "did:web:clinic.example:dr-a#key-1")
	if err != nil {
		t.Fatal(err)
	}
	codec, err := New(WithReferenceIssuer(
		"https://clinic.example/credentials", key, "did:web:clinic.example:dr-a#key-1"))
	if err != nil {
		t.Fatal(err)
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("embedded payloads round-trip losslessly", prop.ForAll(
		func(id string, subject string, medName string, dosage string, durationDays int, quantity int, repeats int, controlled bool) bool {
			issuedAt := time.Date(2026, 2, 11, 9, 0, 0, 0, time.UTC)
			c, err := credential.New(
				"rx-"+id,
				"did:web:clinic.example:dr-a",
				"patient-"+subject,
				[]credential.Medication{{
					Name:         "med-" + medName,
					Dosage:       "d-" + dosage,
					Frequency:    "daily",
					DurationDays: durationDays,
					Quantity:     quantity,
				}},
				issuedAt,
				issuedAt.AddDate(0, 6, 0),
				repeats,
				controlled,
			)
			if err != nil {
				return false
			}
			if err := signer.Sign(c, issuedAt); err != nil {
				return false
			}

			signedCanonical, err := credential.CanonicalBytes(c)
			if err != nil {
				return false
			}

			payload, err := codec.Encode(c)
			if err != nil {
				return false
			}
			env, err := codec.Decode(payload.Bytes)
			if err != nil {
				return false
			}
			if env.Kind != PayloadEmbedded {
				// Generated credentials are small; a reference here means
				// the budget accounting broke.
				return false
			}

			receivedCanonical, err := credential.CanonicalBytes(env.Credential)
			if err != nil {
				return false
			}
			return string(signedCanonical) == string(receivedCanonical)
		},
		gen.Identifier(),
		gen.Identifier(),
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
		gen.Identifier(),
		gen.IntRange(1, 90),
		gen.IntRange(1, 500),
		gen.IntRange(0, 5),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
