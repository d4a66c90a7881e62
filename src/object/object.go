package object

import (
	"math"
	"sort"
)

// Reserved property names.
const (
	TypeField      = "_t"
	SigField       = "_s"
	PermalinkField = "_permalink"
	PrevlinkField  = "_prevlink"
	LinkField      = "_link"
	SigPubKeyField = "_sigPubKey"
	AuthorField    = "_author"
	RecipientField = "_recipient"
	InboundField   = "_inbound"
	VirtualField   = "_virtual"
	EmbedField     = "object"
)

// Envelope properties.
const (
	SeqField             = "_seq"
	TimeField            = "_time"
	RecipientPubKeyField = "recipientPubKey"
	PayloadLinkField     = "_payloadLink"
	PrevMsgLinkField     = "_prevMsgLink"
)

// Identity properties.
const (
	PubKeysField  = "pubkeys"
	IdentityField = "identity"
)

// Type tags.
const (
	TypeIdentity          = "herald.Identity"
	TypeMessage           = "herald.Message"
	TypeSelfIntroduction  = "herald.SelfIntroduction"
	TypeIntroduction      = "herald.Introduction"
	TypeChallengeResponse = "herald.ChallengeResponse"
)

// derivedFields are never part of the hashed body.
var derivedFields = map[string]bool{
	LinkField:      true,
	SigPubKeyField: true,
	AuthorField:    true,
	RecipientField: true,
	InboundField:   true,
	VirtualField:   true,
	EmbedField:     true,
}

// Object is a signed, content-addressed document.
type Object map[string]interface{}

// AsObject converts a decoded property value to an Object.
func AsObject(v interface{}) (Object, bool) {
	switch m := v.(type) {
	case Object:
		return m, m != nil
	case map[string]interface{}:
		return Object(m), m != nil
	}
	return nil, false
}

// Clone returns a shallow copy of o with a fresh _virtual list.
func (o Object) Clone() Object {
	c := make(Object, len(o))
	for k, v := range o {
		c[k] = v
	}
	if v := o.virtuals(); len(v) > 0 {
		c[VirtualField] = v
	}
	return c
}

// DeepClone returns a copy of o that shares no map or slice with o.
func (o Object) DeepClone() Object {
	return deepCopy(o).(Object)
}

func deepCopy(v interface{}) interface{} {
	switch c := v.(type) {
	case Object:
		m := make(Object, len(c))
		for k, e := range c {
			m[k] = deepCopy(e)
		}
		return m
	case map[string]interface{}:
		m := make(map[string]interface{}, len(c))
		for k, e := range c {
			m[k] = deepCopy(e)
		}
		return m
	case []interface{}:
		l := make([]interface{}, len(c))
		for i, e := range c {
			l[i] = deepCopy(e)
		}
		return l
	case []string:
		return append([]string(nil), c...)
	}
	return v
}

// Type returns the type tag.
func (o Object) Type() string {
	return o.String(TypeField)
}

// String returns the string value of property k, or "".
func (o Object) String(k string) string {
	s, _ := o[k].(string)
	return s
}

// Int64 returns the integer value of property k.
func (o Object) Int64(k string) (int64, bool) {
	return ToInt64(o[k])
}

// Bool ...
func (o Object) Bool(k string) bool {
	b, _ := o[k].(bool)
	return b
}

// Object returns the nested object under property k.
func (o Object) Object(k string) (Object, bool) {
	return AsObject(o[k])
}

// IsVirtual reports whether property k is excluded from the hashed body.
func (o Object) IsVirtual(k string) bool {
	if derivedFields[k] {
		return true
	}
	for _, v := range o.virtuals() {
		if v == k {
			return true
		}
	}
	return false
}

// AddVirtual marks properties as virtual.
func (o Object) AddVirtual(names ...string) {
	current := o.virtuals()
	for _, n := range names {
		if derivedFields[n] {
			continue
		}
		found := false
		for _, c := range current {
			if c == n {
				found = true
				break
			}
		}
		if !found {
			current = append(current, n)
		}
	}
	if len(current) > 0 {
		sort.Strings(current)
		o[VirtualField] = current
	}
}

// RemoveVirtual makes properties part of the hashed body again.
func (o Object) RemoveVirtual(names ...string) {
	current := o.virtuals()
	kept := current[:0]
	for _, c := range current {
		drop := false
		for _, n := range names {
			if c == n {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		delete(o, VirtualField)
		return
	}
	o[VirtualField] = kept
}

func (o Object) virtuals() []string {
	switch v := o[VirtualField].(type) {
	case []string:
		return append([]string(nil), v...)
	case []interface{}:
		res := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				res = append(res, s)
			}
		}
		return res
	}
	return nil
}

// Body returns the hashed part of o: o minus its virtual properties.
func (o Object) Body() Object {
	body := make(Object, len(o))
	for k, v := range o {
		if o.IsVirtual(k) {
			continue
		}
		body[k] = v
	}
	return body
}

// IsEnvelope ...
func (o Object) IsEnvelope() bool {
	return o.Type() == TypeMessage
}

// IsIdentity ...
func (o Object) IsIdentity() bool {
	return o.Type() == TypeIdentity
}

// RecipientPub returns the hex public key the envelope is addressed to.
func (o Object) RecipientPub() string {
	rp, ok := o.Object(RecipientPubKeyField)
	if !ok {
		return ""
	}
	return rp.String("pub")
}

// ToInt64 converts the numeric types produced by decoding or by callers to
// int64.
func ToInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}
