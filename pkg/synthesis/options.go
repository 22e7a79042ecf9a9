package synthesis

// Params 一次合成使用的完整参数
type Params struct {
	Voice  int `json:"per"`
	Speed  int `json:"spd"`
	Pitch  int `json:"pit"`
	Volume int `json:"vol"`
}

// DefaultParams vol=5 spd=5 pit=5 per=0
func DefaultParams() Params {
	return Params{Voice: 0, Speed: 5, Pitch: 5, Volume: 5}
}

// Options 调用方覆盖的参数，nil 表示使用默认值
type Options struct {
	Voice  *int `json:"voice"`
	Speed  *int `json:"speed"`
	Pitch  *int `json:"pitch"`
	Volume *int `json:"volume"`
}

// Merge 用 o 中已设置的字段覆盖 def
func (o Options) Merge(def Params) Params {
	p := def
	if o.Voice != nil {
		p.Voice = *o.Voice
	}
	if o.Speed != nil {
		p.Speed = *o.Speed
	}
	if o.Pitch != nil {
		p.Pitch = *o.Pitch
	}
	if o.Volume != nil {
		p.Volume = *o.Volume
	}
	return p
}

func Int(v int) *int { return &v }
