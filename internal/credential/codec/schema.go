package codec

// payloadSchema validates the transport envelope before any field is
// interpreted. Schema violations are terminal Malformed failures; the
// orchestrator never retries them.
const payloadSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["v", "kind"],
  "properties": {
    "v": {"type": "string"},
    "kind": {"enum": ["embedded", "reference"]},
    "credential": {
      "type": "object",
      "required": [
        "schemaVersion", "id", "issuerDid", "subjectRef", "medications",
        "issuedAt", "expiresAt", "repeatsAllowed", "controlledSubstance"
      ],
      "properties": {
        "schemaVersion": {"type": "string"},
        "id": {"type": "string", "minLength": 1},
        "issuerDid": {"type": "string", "pattern": "^did:[a-z0-9]+:.+"},
        "subjectRef": {"type": "string", "minLength": 1},
        "medications": {
          "type": "array",
          "minItems": 1,
          "items": {
            "type": "object",
            "required": ["name", "dosage", "frequency", "durationDays", "quantity"],
            "properties": {
              "name": {"type": "string", "minLength": 1},
              "dosage": {"type": "string", "minLength": 1},
              "frequency": {"type": "string", "minLength": 1},
              "durationDays": {"type": "integer", "minimum": 1},
              "quantity": {"type": "integer", "minimum": 1},
              "instructions": {"type": "string"}
            }
          }
        },
        "issuedAt": {"type": "string", "format": "date-time"},
        "expiresAt": {"type": "string", "format": "date-time"},
        "repeatsAllowed": {"type": "integer", "minimum": 0},
        "controlledSubstance": {"type": "boolean"},
        "minRepeatIntervalDays": {"type": "integer", "minimum": 0},
        "proof": {
          "type": "object",
          "required": ["type", "created", "verificationMethod", "signatureValue"],
          "properties": {
            "type": {"type": "string"},
            "created": {"type": "string", "format": "date-time"},
            "verificationMethod": {"type": "string", "minLength": 1},
            "signatureValue": {"type": "string"}
          }
        }
      }
    },
    "reference": {
      "type": "object",
      "required": ["credentialId", "issuerDid", "fetchUrl", "refToken"],
      "properties": {
        "credentialId": {"type": "string", "minLength": 1},
        "issuerDid": {"type": "string", "pattern": "^did:[a-z0-9]+:.+"},
        "fetchUrl": {"type": "string", "minLength": 1},
        "refToken": {"type": "string", "minLength": 1}
      }
    }
  },
  "allOf": [
    {
      "if": {"properties": {"kind": {"const": "embedded"}}},
      "then": {"required": ["credential"]}
    },
    {
      "if": {"properties": {"kind": {"const": "reference"}}},
      "then": {"required": ["reference"]}
    }
  ]
}`
