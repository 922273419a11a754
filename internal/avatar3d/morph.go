package avatar3d

import "github.com/go-gl/mathgl/mgl32"

// MorphTarget indexes a face channel: the 52 ARKit blendshapes followed by
// the 15 Oculus viseme channels.
type MorphTarget int

const (
	BrowDownLeft MorphTarget = iota
	BrowDownRight
	BrowInnerUp
	BrowOuterUpLeft
	BrowOuterUpRight
	CheekPuff
	CheekSquintLeft
	CheekSquintRight
	EyeBlinkLeft
	EyeBlinkRight
	EyeLookDownLeft
	EyeLookDownRight
	EyeLookInLeft
	EyeLookInRight
	EyeLookOutLeft
	EyeLookOutRight
	EyeLookUpLeft
	EyeLookUpRight
	EyeSquintLeft
	EyeSquintRight
	EyeWideLeft
	EyeWideRight
	JawForward
	JawLeft
	JawOpen
	JawRight
	MouthClose
	MouthDimpleLeft
	MouthDimpleRight
	MouthFrownLeft
	MouthFrownRight
	MouthFunnel
	MouthLeft
	MouthLowerDownLeft
	MouthLowerDownRight
	MouthPressLeft
	MouthPressRight
	MouthPucker
	MouthRight
	MouthRollLower
	MouthRollUpper
	MouthShrugLower
	MouthShrugUpper
	MouthSmileLeft
	MouthSmileRight
	MouthStretchLeft
	MouthStretchRight
	MouthUpperUpLeft
	MouthUpperUpRight
	NoseSneerLeft
	NoseSneerRight
	TongueOut

	VisemeSil
	VisemePP
	VisemeFF
	VisemeTH
	VisemeDD
	VisemeKK
	VisemeCH
	VisemeSS
	VisemeNN
	VisemeRR
	VisemeAA
	VisemeE
	VisemeI
	VisemeO
	VisemeU

	MorphTargetCount
)

// NoTarget marks a model morph target with no matching channel.
const NoTarget MorphTarget = -1

var morphTargetNames = [MorphTargetCount]string{
	"browDownLeft",
	"browDownRight",
	"browInnerUp",
	"browOuterUpLeft",
	"browOuterUpRight",
	"cheekPuff",
	"cheekSquintLeft",
	"cheekSquintRight",
	"eyeBlinkLeft",
	"eyeBlinkRight",
	"eyeLookDownLeft",
	"eyeLookDownRight",
	"eyeLookInLeft",
	"eyeLookInRight",
	"eyeLookOutLeft",
	"eyeLookOutRight",
	"eyeLookUpLeft",
	"eyeLookUpRight",
	"eyeSquintLeft",
	"eyeSquintRight",
	"eyeWideLeft",
	"eyeWideRight",
	"jawForward",
	"jawLeft",
	"jawOpen",
	"jawRight",
	"mouthClose",
	"mouthDimpleLeft",
	"mouthDimpleRight",
	"mouthFrownLeft",
	"mouthFrownRight",
	"mouthFunnel",
	"mouthLeft",
	"mouthLowerDownLeft",
	"mouthLowerDownRight",
	"mouthPressLeft",
	"mouthPressRight",
	"mouthPucker",
	"mouthRight",
	"mouthRollLower",
	"mouthRollUpper",
	"mouthShrugLower",
	"mouthShrugUpper",
	"mouthSmileLeft",
	"mouthSmileRight",
	"mouthStretchLeft",
	"mouthStretchRight",
	"mouthUpperUpLeft",
	"mouthUpperUpRight",
	"noseSneerLeft",
	"noseSneerRight",
	"tongueOut",
	"viseme_sil",
	"viseme_PP",
	"viseme_FF",
	"viseme_TH",
	"viseme_DD",
	"viseme_kk",
	"viseme_CH",
	"viseme_SS",
	"viseme_nn",
	"viseme_RR",
	"viseme_aa",
	"viseme_E",
	"viseme_I",
	"viseme_O",
	"viseme_U",
}

var morphTargetIndex = func() map[string]MorphTarget {
	m := make(map[string]MorphTarget, MorphTargetCount)
	for i, name := range morphTargetNames {
		m[name] = MorphTarget(i)
	}
	return m
}()

func (t MorphTarget) String() string {
	if t < 0 || t >= MorphTargetCount {
		return "unknown"
	}
	return morphTargetNames[t]
}

// IsViseme reports whether t is one of the mouth-shape channels.
func (t MorphTarget) IsViseme() bool {
	return t >= VisemeSil && t <= VisemeU
}

// IsBlink reports whether t is owned by the blink scheduler.
func (t MorphTarget) IsBlink() bool {
	return t == EyeBlinkLeft || t == EyeBlinkRight
}

// MorphTargetByName resolves a channel by its model name.
func MorphTargetByName(name string) (MorphTarget, bool) {
	t, ok := morphTargetIndex[name]
	return t, ok
}

// MorphTargetNames returns channel names in index order.
func MorphTargetNames() []string {
	out := make([]string, MorphTargetCount)
	copy(out, morphTargetNames[:])
	return out
}

// MorphFrame holds one weight in [0,1] per channel. The tick loop owns it.
type MorphFrame [MorphTargetCount]float32

func (f *MorphFrame) Set(t MorphTarget, value float32) {
	f[t] = mgl32.Clamp(value, 0, 1)
}

func (f *MorphFrame) Get(t MorphTarget) float32 {
	return f[t]
}

// Approach moves channel t toward target by alpha.
func (f *MorphFrame) Approach(t MorphTarget, target, alpha float32) {
	f.Set(t, f[t]+(target-f[t])*alpha)
}

func (f *MorphFrame) Reset() {
	*f = MorphFrame{}
}

// Visemes returns the viseme channel weights in index order.
func (f *MorphFrame) Visemes() []float32 {
	return f[VisemeSil : VisemeU+1]
}
