package avatar3d

import "github.com/normanking/cortexlipsync/internal/utterance"

// rhubarbVisemes maps Rhubarb mouth shapes onto viseme channels.
var rhubarbVisemes = map[utterance.Symbol]MorphTarget{
	utterance.SymbolA: VisemePP,
	utterance.SymbolB: VisemeKK,
	utterance.SymbolC: VisemeI,
	utterance.SymbolD: VisemeAA,
	utterance.SymbolE: VisemeO,
	utterance.SymbolF: VisemeU,
	utterance.SymbolG: VisemeFF,
	utterance.SymbolH: VisemeTH,
	utterance.SymbolX: VisemePP,
}

// VisemeFor returns the channel for a mouth shape.
func VisemeFor(s utterance.Symbol) (MorphTarget, bool) {
	t, ok := rhubarbVisemes[s]
	return t, ok
}

// DriveVisemes blends the active viseme toward 1 and every other viseme
// channel toward 0. Pass NoTarget to relax the mouth.
func DriveVisemes(frame *MorphFrame, active MorphTarget, alpha float32) {
	for t := VisemeSil; t <= VisemeU; t++ {
		var target float32
		if t == active {
			target = 1
		}
		frame.Approach(t, target, alpha)
	}
}

type weightedTarget struct {
	Target MorphTarget
	Weight float32
}

// visemeProjection approximates each viseme with ARKit mouth shapes for
// models that ship without viseme morph targets.
var visemeProjection = map[MorphTarget][]weightedTarget{
	VisemeSil: {},
	VisemePP:  {{MouthClose, 0.8}, {MouthPucker, 0.3}},
	VisemeFF:  {{MouthFunnel, 0.5}, {MouthLowerDownLeft, 0.2}, {MouthLowerDownRight, 0.2}},
	VisemeTH:  {{MouthFunnel, 0.3}, {TongueOut, 0.4}},
	VisemeDD:  {{JawOpen, 0.2}, {MouthUpperUpLeft, 0.2}, {MouthUpperUpRight, 0.2}},
	VisemeKK:  {{JawOpen, 0.25}, {MouthStretchLeft, 0.2}, {MouthStretchRight, 0.2}},
	VisemeCH:  {{MouthFunnel, 0.4}, {MouthPucker, 0.3}},
	VisemeSS:  {{MouthStretchLeft, 0.3}, {MouthStretchRight, 0.3}},
	VisemeNN:  {{JawOpen, 0.15}, {MouthClose, 0.3}},
	VisemeRR:  {{MouthPucker, 0.4}, {MouthFunnel, 0.2}},
	VisemeAA:  {{JawOpen, 0.6}, {MouthStretchLeft, 0.2}, {MouthStretchRight, 0.2}},
	VisemeE:   {{JawOpen, 0.3}, {MouthSmileLeft, 0.3}, {MouthSmileRight, 0.3}},
	VisemeI:   {{JawOpen, 0.2}, {MouthSmileLeft, 0.4}, {MouthSmileRight, 0.4}},
	VisemeO:   {{JawOpen, 0.4}, {MouthFunnel, 0.5}, {MouthPucker, 0.3}},
	VisemeU:   {{JawOpen, 0.25}, {MouthPucker, 0.6}, {MouthFunnel, 0.4}},
}

// ProjectVisemes returns a copy of frame with viseme weights added onto the
// ARKit mouth channels.
func ProjectVisemes(frame *MorphFrame) MorphFrame {
	out := *frame
	for t := VisemeSil; t <= VisemeU; t++ {
		w := frame[t]
		if w < 0.01 {
			continue
		}
		for _, m := range visemeProjection[t] {
			out.Set(m.Target, out[m.Target]+m.Weight*w)
		}
	}
	return out
}
