package luamodule

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/Shopify/go-lua"
)

// pushValue pushes a Go value onto the Lua stack. Values other than the
// JSON primitives are converted through their JSON form.
func pushValue(state *lua.State, value any) error {
	switch v := value.(type) {
	case nil:
		state.PushNil()
	case string:
		state.PushString(v)
	case bool:
		state.PushBoolean(v)
	case int:
		state.PushInteger(v)
	case float64:
		state.PushNumber(v)
	case []any:
		state.CreateTable(len(v), 0)
		for i, item := range v {
			if err := pushValue(state, item); err != nil {
				state.Pop(1)
				return err
			}
			state.RawSetInt(-2, i+1)
		}
	case map[string]any:
		state.CreateTable(0, len(v))
		for key, item := range v {
			if err := pushValue(state, item); err != nil {
				state.Pop(1)
				return err
			}
			state.SetField(-2, key)
		}
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %T for lua: %w", v, err)
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return fmt.Errorf("encode %T for lua: %w", v, err)
		}
		return pushValue(state, generic)
	}
	return nil
}

// decodeValue converts the Lua value at index into out via its JSON form.
func decodeValue(state *lua.State, index int, out any) error {
	raw, err := json.Marshal(luaToGo(state, index))
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func luaToGo(state *lua.State, index int) any {
	switch state.TypeOf(index) {
	case lua.TypeString:
		value, _ := state.ToString(index)
		return value
	case lua.TypeNumber:
		value, _ := state.ToNumber(index)
		return normalizeNumber(value)
	case lua.TypeBoolean:
		return state.ToBoolean(index)
	case lua.TypeTable:
		return tableToGo(state, index)
	default:
		return nil
	}
}

// tableToGo returns a []any for sequences, a map for records and nil for
// empty tables, which have no shape of their own.
func tableToGo(state *lua.State, index int) any {
	index = state.AbsIndex(index)
	isArray := true
	maxIndex := 0
	count := 0
	state.PushNil()
	for state.Next(index) {
		count++
		if isArray {
			if state.TypeOf(-2) != lua.TypeNumber {
				isArray = false
			} else if idx, ok := state.ToInteger(-2); ok && idx > 0 {
				if idx > maxIndex {
					maxIndex = idx
				}
			} else {
				isArray = false
			}
		}
		state.Pop(1)
	}
	if count == 0 {
		return nil
	}

	if isArray && maxIndex == count {
		result := make([]any, 0, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			state.RawGetInt(index, i)
			result = append(result, luaToGo(state, -1))
			state.Pop(1)
		}
		return result
	}
	return tableToMap(state, index)
}

func tableToMap(state *lua.State, index int) map[string]any {
	output := map[string]any{}
	index = state.AbsIndex(index)
	state.PushNil()
	for state.Next(index) {
		if state.TypeOf(-2) == lua.TypeString {
			key, _ := state.ToString(-2)
			output[key] = luaToGo(state, -1)
		}
		state.Pop(1)
	}
	return output
}

func normalizeNumber(value float64) any {
	if math.Mod(value, 1) == 0 && math.Abs(value) < 1<<53 {
		return int(value)
	}
	return value
}
