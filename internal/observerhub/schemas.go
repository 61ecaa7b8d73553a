package observerhub

import "github.com/santhosh-tekuri/jsonschema/v5"

// requestSchema validates the observer request envelope before any field
// is trusted. Operation-specific requirements (host/port for CREATE_AGENT
// and so on) are enforced in the dispatcher, where the reply can carry a
// precise code.
const requestSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type", "protocol_version", "id", "op"],
  "properties": {
    "type": {"const": "REQUEST"},
    "protocol_version": {"const": "0.1"},
    "id": {"type": "string", "minLength": 1},
    "op": {
      "enum": [
        "CREATE_AGENT",
        "REMOVE_AGENT",
        "ACQUIRE_CONTROL",
        "RELEASE_CONTROL",
        "ROUTE_INPUT",
        "SEND_CHAT",
        "FORCE_DROP"
      ]
    },
    "agent_id": {"type": "string"},
    "host": {"type": "string"},
    "port": {"type": "integer", "minimum": 0, "maximum": 65535},
    "username": {"type": "string"},
    "text": {"type": "string"},
    "command": {
      "type": "object",
      "required": ["kind"],
      "properties": {
        "kind": {"enum": ["key", "look"]},
        "key": {"type": "string"},
        "down": {"type": "boolean"},
        "yaw": {"type": "number"},
        "pitch": {"type": "number"}
      }
    }
  }
}`

var requestSchema = jsonschema.MustCompileString("request.schema.json", requestSchemaJSON)
