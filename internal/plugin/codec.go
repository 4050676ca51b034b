package plugin

import (
	"fmt"
	"unicode/utf8"

	"github.com/felixgeelhaar/moosbridge/internal/bridge"
	"google.golang.org/protobuf/types/known/structpb"
)

// Field names of the Struct records exchanged over the wire.
const (
	fieldName     = "name"
	fieldKind     = "kind"
	fieldNumeric  = "numeric"
	fieldText     = "text"
	fieldScope    = "scope"
	fieldInterval = "interval"
	fieldOK       = "ok"
)

// EncodeMail converts a mail batch into a list of {name, kind, numeric, text}
// records. Text that is not valid UTF-8 cannot be carried by protobuf and
// fails the whole batch.
func EncodeMail(mail []bridge.Envelope) (*structpb.ListValue, error) {
	list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(mail))}
	for i, env := range mail {
		if !env.Kind.IsValid() {
			return nil, fmt.Errorf("%w: record %d has kind %q", ErrInvalidEnvelope, i, env.Kind)
		}
		if !utf8.ValidString(env.Name) || !utf8.ValidString(env.Text) {
			return nil, fmt.Errorf("%w: record %d is not valid UTF-8", ErrInvalidEnvelope, i)
		}
		list.Values = append(list.Values, structpb.NewStructValue(&structpb.Struct{
			Fields: map[string]*structpb.Value{
				fieldName:    structpb.NewStringValue(env.Name),
				fieldKind:    structpb.NewStringValue(env.Kind.String()),
				fieldNumeric: structpb.NewNumberValue(env.Numeric),
				fieldText:    structpb.NewStringValue(env.Text),
			},
		}))
	}
	return list, nil
}

// DecodeMail converts wire records back into a batch. The result has one
// element per record and is nil for an empty list.
func DecodeMail(list *structpb.ListValue) ([]bridge.Envelope, error) {
	values := list.GetValues()
	if len(values) == 0 {
		return nil, nil
	}

	mail := make([]bridge.Envelope, 0, len(values))
	for i, v := range values {
		record := v.GetStructValue()
		if record == nil {
			return nil, fmt.Errorf("%w: record %d is not a struct", ErrInvalidEnvelope, i)
		}
		fields := record.GetFields()

		kind := bridge.Kind(fields[fieldKind].GetStringValue())
		switch kind {
		case bridge.KindNumeric:
			mail = append(mail, bridge.NumericEnvelope(fields[fieldName].GetStringValue(), fields[fieldNumeric].GetNumberValue()))
		case bridge.KindText:
			mail = append(mail, bridge.TextEnvelope(fields[fieldName].GetStringValue(), fields[fieldText].GetStringValue()))
		default:
			return nil, fmt.Errorf("%w: record %d has kind %q", ErrInvalidEnvelope, i, kind)
		}
	}
	return mail, nil
}

func encodeParamQuery(q ParamQuery) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldName:  structpb.NewStringValue(q.Name),
		fieldScope: structpb.NewStringValue(string(q.Scope)),
		fieldKind:  structpb.NewStringValue(q.Kind.String()),
	}}
}

func decodeParamQuery(s *structpb.Struct) (ParamQuery, error) {
	fields := s.GetFields()
	q := ParamQuery{
		Name:  fields[fieldName].GetStringValue(),
		Scope: Scope(fields[fieldScope].GetStringValue()),
		Kind:  bridge.Kind(fields[fieldKind].GetStringValue()),
	}
	if q.Name == "" {
		return ParamQuery{}, fmt.Errorf("%w: name is required", ErrInvalidParamQuery)
	}
	if !q.Scope.IsValid() {
		return ParamQuery{}, fmt.Errorf("%w: unknown scope %q", ErrInvalidParamQuery, q.Scope)
	}
	if !q.Kind.IsValid() {
		return ParamQuery{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidParamQuery, q.Kind)
	}
	return q, nil
}

func encodeParamValue(v ParamValue) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldOK:      structpb.NewBoolValue(v.OK),
		fieldNumeric: structpb.NewNumberValue(v.Numeric),
		fieldText:    structpb.NewStringValue(v.Text),
	}}
}

func decodeParamValue(s *structpb.Struct) ParamValue {
	fields := s.GetFields()
	return ParamValue{
		OK:      fields[fieldOK].GetBoolValue(),
		Numeric: fields[fieldNumeric].GetNumberValue(),
		Text:    fields[fieldText].GetStringValue(),
	}
}

func encodeNotify(name string, numeric float64, text string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldName:    structpb.NewStringValue(name),
		fieldNumeric: structpb.NewNumberValue(numeric),
		fieldText:    structpb.NewStringValue(text),
	}}
}

func encodeRegister(name string, interval float64) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldName:     structpb.NewStringValue(name),
		fieldInterval: structpb.NewNumberValue(interval),
	}}
}
