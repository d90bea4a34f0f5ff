package apic

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// ManagedObject is one instance of the controller's object model: a class
// name, an open string-to-string attribute map, and child objects. The map
// keeps every controller-supplied key, including ones this library has never
// heard of, so a decoded object re-encodes without losing anything.
type ManagedObject struct {
	ClassName  string
	Attributes map[string]string
	Children   []*ManagedObject
}

// NewManagedObject creates a managed object of the given class with its dn
// attribute set.
func NewManagedObject(className, dn string) *ManagedObject {
	return &ManagedObject{
		ClassName:  className,
		Attributes: map[string]string{dnAttribute: dn},
	}
}

// DN returns the object's distinguished name, or "" when the dn attribute is
// absent (subtree children often omit it).
func (m *ManagedObject) DN() string {
	return m.Attributes[dnAttribute]
}

// SetAttribute sets one attribute and returns the object for chaining while
// building change trees.
func (m *ManagedObject) SetAttribute(key, value string) *ManagedObject {
	if m.Attributes == nil {
		m.Attributes = make(map[string]string)
	}
	m.Attributes[key] = value
	return m
}

// AddChild appends a child object and returns the parent for chaining.
func (m *ManagedObject) AddChild(child *ManagedObject) *ManagedObject {
	m.Children = append(m.Children, child)
	return m
}

// moBody is the value under the class-name key in the wire form.
type moBody struct {
	Attributes map[string]string `json:"attributes"`
	Children   []*ManagedObject  `json:"children,omitempty"`
}

// MarshalJSON renders the controller's wire form: a one-key object whose key
// is the class name and whose value holds attributes and children.
//
//	{"fvTenant": {"attributes": {"dn": "uni/tn-EXAMPLE", "name": "EXAMPLE"}}}
func (m *ManagedObject) MarshalJSON() ([]byte, error) {
	attrs := m.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	//nolint:wrapcheck // Plain struct marshalling cannot fail on this shape
	return json.Marshal(map[string]moBody{
		m.ClassName: {
			Attributes: attrs,
			Children:   m.Children,
		},
	})
}

// UnmarshalJSON parses the controller's wire form. Malformed input fails
// with an ErrMalformedEnvelope-marked error; it is never silently skipped.
func (m *ManagedObject) UnmarshalJSON(data []byte) error {
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(data, &outer); err != nil {
		return errors.Mark(errors.Wrap(err, "object entry is not a JSON object"), ErrMalformedEnvelope)
	}
	if len(outer) != 1 {
		return errors.Mark(
			errors.Newf("object entry must have exactly one class key, found %d", len(outer)),
			ErrMalformedEnvelope,
		)
	}

	for className, rawBody := range outer {
		var body struct {
			Attributes map[string]string `json:"attributes"`
			Children   []json.RawMessage `json:"children"`
		}
		if err := json.Unmarshal(rawBody, &body); err != nil {
			return errors.Mark(
				errors.Wrapf(err, "invalid body for class %q", className),
				ErrMalformedEnvelope,
			)
		}
		if body.Attributes == nil {
			return errors.Mark(
				errors.Newf("class %q is missing its attributes object", className),
				ErrMalformedEnvelope,
			)
		}

		children := make([]*ManagedObject, 0, len(body.Children))
		for _, rawChild := range body.Children {
			child := &ManagedObject{}
			if err := child.UnmarshalJSON(rawChild); err != nil {
				return err
			}
			children = append(children, child)
		}
		if len(children) == 0 {
			children = nil
		}

		m.ClassName = className
		m.Attributes = body.Attributes
		m.Children = children
	}
	return nil
}

// decodeEnvelope parses an imdata envelope into managed objects, preserving
// controller order. A body without an imdata list fails with
// ErrMalformedEnvelope so a broken response can never be mistaken for an
// empty result set.
func decodeEnvelope(body []byte) ([]*ManagedObject, error) {
	var env struct {
		Imdata     *[]json.RawMessage `json:"imdata"`
		TotalCount string             `json:"totalCount"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "response is not valid JSON"), ErrMalformedEnvelope)
	}
	if env.Imdata == nil {
		return nil, errors.Mark(errors.New("response is missing the imdata list"), ErrMalformedEnvelope)
	}

	objects := make([]*ManagedObject, 0, len(*env.Imdata))
	for _, raw := range *env.Imdata {
		mo := &ManagedObject{}
		if err := mo.UnmarshalJSON(raw); err != nil {
			return nil, err
		}
		objects = append(objects, mo)
	}
	return objects, nil
}

// encodeChange renders a change tree for submission. The tree's root must
// carry a dn attribute, since the POST path is derived from it.
func encodeChange(mo *ManagedObject) ([]byte, error) {
	if mo == nil {
		return nil, errors.New("change request must not be nil")
	}
	if mo.DN() == "" {
		return nil, errors.New("change request root is missing its dn attribute")
	}
	data, err := json.Marshal(mo)
	if err != nil {
		return nil, errors.Wrap(err, "encoding change request")
	}
	return data, nil
}
