package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"drmp-assignment/internal/domain"
)

// ParseConditions 解析规则条件 JSON；未知字段视为错误
func ParseConditions(raw json.RawMessage) (domain.RuleConditions, error) {
	var c domain.RuleConditions
	if err := decodeStrict(raw, &c); err != nil {
		return domain.RuleConditions{}, domain.WrapError(domain.KindValidation, err, "invalid rule conditions")
	}
	return c, nil
}

// ParseActions 解析规则动作 JSON；未知字段视为错误
func ParseActions(raw json.RawMessage) (domain.RuleActions, error) {
	var a domain.RuleActions
	if err := decodeStrict(raw, &a); err != nil {
		return domain.RuleActions{}, domain.WrapError(domain.KindValidation, err, "invalid rule actions")
	}
	return a, nil
}

func decodeStrict(raw json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errTrailingData
	}
	return nil
}

var errTrailingData = errors.New("unexpected data after JSON object")
