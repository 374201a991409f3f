package models

import (
	"encoding/json"

	dErrors "anchorid/pkg/domain-errors"
)

// AttributeKind constrains a claim attribute's JSON type.
type AttributeKind string

const (
	AttrString AttributeKind = "string"
	AttrBool   AttributeKind = "bool"
	AttrNumber AttributeKind = "number"
)

// AttributeSpec declares one attribute of a claim schema.
type AttributeSpec struct {
	Kind     AttributeKind
	Required bool
}

// ClaimSchema declares the attribute set a credential type carries. Claims
// are validated against the schema at issuance, so disclosure requests can
// be checked by name against a known attribute set instead of probing an
// open-ended bag.
type ClaimSchema struct {
	SchemaID   string
	Attributes map[string]AttributeSpec
}

// schemas is the declared schema per credential type.
var schemas = map[CredentialType]ClaimSchema{
	TypeIdentity: {
		SchemaID: "anchorid.schema.identity.v1",
		Attributes: map[string]AttributeSpec{
			"firstName": {Kind: AttrString, Required: true},
			"lastName":  {Kind: AttrString, Required: true},
			"verified":  {Kind: AttrBool, Required: true},
			"country":   {Kind: AttrString},
		},
	},
	TypeAge: {
		SchemaID: "anchorid.schema.age.v1",
		Attributes: map[string]AttributeSpec{
			"age":         {Kind: AttrNumber, Required: true},
			"dateOfBirth": {Kind: AttrString},
		},
	},
	TypeMembership: {
		SchemaID: "anchorid.schema.membership.v1",
		Attributes: map[string]AttributeSpec{
			"groupId":     {Kind: AttrString, Required: true},
			"memberSince": {Kind: AttrString, Required: true},
			"role":        {Kind: AttrString},
		},
	},
}

// SchemaFor looks up the declared schema for a credential type.
func SchemaFor(t CredentialType) (ClaimSchema, error) {
	s, ok := schemas[t]
	if !ok {
		return ClaimSchema{}, dErrors.Newf(dErrors.CodeValidation, "unknown credential type %q", t)
	}
	return s, nil
}

// ValidateClaims checks a claim set against a type's schema: required
// attributes present, no undeclared attributes, JSON types as declared.
func ValidateClaims(t CredentialType, claims map[string]any) error {
	schema, err := SchemaFor(t)
	if err != nil {
		return err
	}
	for name, spec := range schema.Attributes {
		v, ok := claims[name]
		if !ok {
			if spec.Required {
				return dErrors.Newf(dErrors.CodeValidation, "missing required claim %q", name)
			}
			continue
		}
		if !kindMatches(spec.Kind, v) {
			return dErrors.Newf(dErrors.CodeValidation, "claim %q must be a %s", name, spec.Kind)
		}
	}
	for name := range claims {
		if _, ok := schema.Attributes[name]; !ok {
			return dErrors.Newf(dErrors.CodeValidation, "claim %q is not declared by %s", name, schema.SchemaID)
		}
	}
	return nil
}

// HasAttribute reports whether the type's schema declares the attribute.
// Used by the proof engine to reject disclosure requests before touching the
// credential itself.
func HasAttribute(t CredentialType, name string) bool {
	schema, ok := schemas[t]
	if !ok {
		return false
	}
	_, declared := schema.Attributes[name]
	return declared
}

func kindMatches(kind AttributeKind, v any) bool {
	switch kind {
	case AttrString:
		_, ok := v.(string)
		return ok
	case AttrBool:
		_, ok := v.(bool)
		return ok
	case AttrNumber:
		switch v.(type) {
		case float64, int, int64, json.Number:
			return true
		}
		return false
	}
	return false
}
