package action

// TypeMpyDidFailToCompile is published when the compiler produced no output.
const TypeMpyDidFailToCompile Type = "mpy.action.didFailToCompile"

// MpyDidFailToCompile carries the compiler error text.
type MpyDidFailToCompile struct {
	Err string `json:"err"`
}

func (MpyDidFailToCompile) Type() Type { return TypeMpyDidFailToCompile }
