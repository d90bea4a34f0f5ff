package apic

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	t.Parallel()

	body := []byte(`{
		"totalCount": "2",
		"imdata": [
			{"faultInst": {"attributes": {"dn": "uni/fault-1", "severity": "critical", "vendorX": "kept"}}},
			{"faultInst": {"attributes": {"dn": "uni/fault-2", "severity": "minor"}}}
		]
	}`)

	objects, err := decodeEnvelope(body)
	require.NoError(t, err)
	require.Len(t, objects, 2)

	// Controller order and every attribute key are preserved, including
	// keys this library does not know about.
	assert.Equal(t, "faultInst", objects[0].ClassName)
	assert.Equal(t, "uni/fault-1", objects[0].DN())
	assert.Equal(t, "critical", objects[0].Attributes["severity"])
	assert.Equal(t, "kept", objects[0].Attributes["vendorX"])
	assert.Equal(t, "uni/fault-2", objects[1].DN())
}

func TestDecodeEnvelopeNested(t *testing.T) {
	t.Parallel()

	body := []byte(`{
		"totalCount": "1",
		"imdata": [
			{"fvTenant": {
				"attributes": {"dn": "uni/tn-T", "name": "T"},
				"children": [
					{"fvAp": {
						"attributes": {"name": "APP"},
						"children": [
							{"fvAEPg": {"attributes": {"name": "EPG"}}}
						]
					}}
				]
			}}
		]
	}`)

	objects, err := decodeEnvelope(body)
	require.NoError(t, err)
	require.Len(t, objects, 1)

	tenant := objects[0]
	require.Len(t, tenant.Children, 1)
	ap := tenant.Children[0]
	assert.Equal(t, "fvAp", ap.ClassName)
	require.Len(t, ap.Children, 1)
	assert.Equal(t, "fvAEPg", ap.Children[0].ClassName)
	assert.Equal(t, "EPG", ap.Children[0].Attributes["name"])
}

func TestDecodeEnvelopeEmpty(t *testing.T) {
	t.Parallel()

	// An empty result set is a valid result, distinguishable from an error.
	objects, err := decodeEnvelope([]byte(`{"totalCount": "0", "imdata": []}`))
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestDecodeEnvelopeMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{
			name: "not json",
			body: `<html>service unavailable</html>`,
		},
		{
			name: "missing imdata",
			body: `{"totalCount": "0"}`,
		},
		{
			name: "entry with two class keys",
			body: `{"imdata": [{"a": {"attributes": {}}, "b": {"attributes": {}}}]}`,
		},
		{
			name: "entry missing attributes",
			body: `{"imdata": [{"faultInst": {}}]}`,
		},
		{
			name: "attributes not a mapping",
			body: `{"imdata": [{"faultInst": {"attributes": ["x"]}}]}`,
		},
		{
			name: "non-string attribute value",
			body: `{"imdata": [{"faultInst": {"attributes": {"count": 3}}}]}`,
		},
		{
			name: "malformed child",
			body: `{"imdata": [{"fvTenant": {"attributes": {"dn": "uni/tn-T"}, "children": [{"fvAp": {}}]}}]}`,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := decodeEnvelope([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedEnvelope), "want ErrMalformedEnvelope, got %v", err)
		})
	}
}

// TestRoundTrip decodes a controller payload and re-encodes it unmodified;
// the wire form must be semantically identical.
func TestRoundTrip(t *testing.T) {
	t.Parallel()

	original := []byte(`{"fvTenant": {
		"attributes": {"dn": "uni/tn-T", "name": "T", "unknownAttr": "preserved"},
		"children": [
			{"fvAp": {"attributes": {"dn": "uni/tn-T/ap-A", "name": "A"}}}
		]
	}}`)

	mo := &ManagedObject{}
	require.NoError(t, json.Unmarshal(original, mo))

	reencoded, err := json.Marshal(mo)
	require.NoError(t, err)

	assert.JSONEq(t, string(original), string(reencoded))
}

func TestMarshalOmitsEmptyChildren(t *testing.T) {
	t.Parallel()

	mo := NewManagedObject("fvTenant", "uni/tn-T").SetAttribute("name", "T")

	data, err := json.Marshal(mo)
	require.NoError(t, err)

	assert.JSONEq(t, `{"fvTenant": {"attributes": {"dn": "uni/tn-T", "name": "T"}}}`, string(data))
	assert.NotContains(t, string(data), "children")
}

func TestEncodeChange(t *testing.T) {
	t.Parallel()

	t.Run("single node matches input exactly", func(t *testing.T) {
		t.Parallel()

		mo := NewManagedObject("fvTenant", "uni/tn-NEW").
			SetAttribute("name", "NEW").
			SetAttribute("descr", "created by test")

		payload, err := encodeChange(mo)
		require.NoError(t, err)

		var decoded map[string]struct {
			Attributes map[string]string `json:"attributes"`
		}
		require.NoError(t, json.Unmarshal(payload, &decoded))
		require.Contains(t, decoded, "fvTenant")
		assert.Equal(t, map[string]string{
			"dn":    "uni/tn-NEW",
			"name":  "NEW",
			"descr": "created by test",
		}, decoded["fvTenant"].Attributes)
	})

	t.Run("tree with children", func(t *testing.T) {
		t.Parallel()

		mo := NewManagedObject("fvTenant", "uni/tn-T").
			AddChild(NewManagedObject("fvAp", "uni/tn-T/ap-A"))

		payload, err := encodeChange(mo)
		require.NoError(t, err)
		assert.Contains(t, string(payload), `"fvAp"`)
	})

	t.Run("nil rejected", func(t *testing.T) {
		t.Parallel()

		_, err := encodeChange(nil)
		require.Error(t, err)
	})

	t.Run("missing dn rejected", func(t *testing.T) {
		t.Parallel()

		_, err := encodeChange(&ManagedObject{ClassName: "fvTenant"})
		require.Error(t, err)
	})
}
