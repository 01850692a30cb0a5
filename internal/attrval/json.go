/*
Copyright (C) 2026  MemCP Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package attrval

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// MarshalJSON renders the DynamoDB wire shape: exactly one of
// S/N/B/BOOL/NULL/SS/NS/BS/L/M is present, matching the external wire
// decoder's expected item JSON.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return json.Marshal(struct {
			NULL bool `json:"NULL"`
		}{true})
	case KindString:
		return json.Marshal(struct {
			S string `json:"S"`
		}{v.s})
	case KindNumber:
		return json.Marshal(struct {
			N string `json:"N"`
		}{v.n.String()})
	case KindBinary:
		return json.Marshal(struct {
			B []byte `json:"B"`
		}{v.b})
	case KindBool:
		return json.Marshal(struct {
			BOOL bool `json:"BOOL"`
		}{v.bl})
	case KindStringSet:
		return json.Marshal(struct {
			SS []string `json:"SS"`
		}{v.ss})
	case KindNumberSet:
		ns := make([]string, len(v.ns))
		for i, n := range v.ns {
			ns[i] = n.String()
		}
		return json.Marshal(struct {
			NS []string `json:"NS"`
		}{ns})
	case KindBinarySet:
		return json.Marshal(struct {
			BS [][]byte `json:"BS"`
		}{v.bs})
	case KindList:
		return json.Marshal(struct {
			L []Value `json:"L"`
		}{v.list})
	case KindMap:
		return json.Marshal(struct {
			M map[string]Value `json:"M"`
		}{v.m})
	default:
		return nil, fmt.Errorf("attrval: cannot marshal kind %s", v.kind)
	}
}

type wireShape struct {
	S    *string          `json:"S"`
	N    *string          `json:"N"`
	B    []byte           `json:"B"`
	BOOL *bool            `json:"BOOL"`
	NULL *bool            `json:"NULL"`
	SS   []string         `json:"SS"`
	NS   []string         `json:"NS"`
	BS   [][]byte         `json:"BS"`
	L    []Value          `json:"L"`
	M    map[string]Value `json:"M"`
}

// UnmarshalJSON parses the DynamoDB wire shape back into a Value.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireShape
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("attrval: %w", err)
	}
	switch {
	case w.S != nil:
		*v = String(*w.S)
	case w.N != nil:
		nv, err := NumberFromString(*w.N)
		if err != nil {
			return err
		}
		*v = nv
	case w.B != nil:
		*v = Binary(w.B)
	case w.BOOL != nil:
		*v = Bool(*w.BOOL)
	case w.NULL != nil:
		*v = Null()
	case w.SS != nil:
		*v = StringSet(w.SS)
	case w.NS != nil:
		ds := make([]decimal.Decimal, len(w.NS))
		for i, s := range w.NS {
			d, err := decimal.NewFromString(s)
			if err != nil {
				return fmt.Errorf("attrval: invalid NS member %q: %w", s, err)
			}
			ds[i] = d
		}
		*v = NumberSet(ds)
	case w.BS != nil:
		*v = BinarySet(w.BS)
	case w.L != nil:
		*v = List(w.L)
	case w.M != nil:
		*v = Map(w.M)
	default:
		return fmt.Errorf("attrval: object does not match any known attribute value variant")
	}
	return nil
}
