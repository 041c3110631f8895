package model

// Filter name constants as advertised by nodes.
const (
	FilterVolume     = "volume"
	FilterEqualizer  = "equalizer"
	FilterKaraoke    = "karaoke"
	FilterTimescale  = "timescale"
	FilterTremolo    = "tremolo"
	FilterVibrato    = "vibrato"
	FilterRotation   = "rotation"
	FilterDistortion = "distortion"
	FilterLowPass    = "lowPass"
	FilterChannelMix = "channelMix"
	FilterEcho       = "echo"
)

// EQBand adjusts the gain of one of the fifteen equalizer bands.
type EQBand struct {
	Band int     `json:"band"`
	Gain float64 `json:"gain"`
}

// Karaoke suppresses the vocal band.
type Karaoke struct {
	Level       float64 `json:"level"`
	MonoLevel   float64 `json:"monoLevel"`
	FilterBand  float64 `json:"filterBand"`
	FilterWidth float64 `json:"filterWidth"`
}

// Timescale changes speed, pitch and rate.
type Timescale struct {
	Speed float64 `json:"speed"`
	Pitch float64 `json:"pitch"`
	Rate  float64 `json:"rate"`
}

// Multiplier is the effective playback speed factor. Positions reported by a
// node run at this rate relative to track time.
func (t *Timescale) Multiplier() float64 {
	if t == nil {
		return 1.0
	}
	m := 1.0
	if t.Speed > 0 {
		m *= t.Speed
	}
	if t.Rate > 0 {
		m *= t.Rate
	}
	return m
}

// Tremolo oscillates the volume.
type Tremolo struct {
	Frequency float64 `json:"frequency"`
	Depth     float64 `json:"depth"`
}

// Vibrato oscillates the pitch.
type Vibrato struct {
	Frequency float64 `json:"frequency"`
	Depth     float64 `json:"depth"`
}

// Rotation pans the audio around the listener.
type Rotation struct {
	RotationHz float64 `json:"rotationHz"`
}

// Distortion applies waveform distortion.
type Distortion struct {
	SinOffset float64 `json:"sinOffset"`
	SinScale  float64 `json:"sinScale"`
	CosOffset float64 `json:"cosOffset"`
	CosScale  float64 `json:"cosScale"`
	TanOffset float64 `json:"tanOffset"`
	TanScale  float64 `json:"tanScale"`
	Offset    float64 `json:"offset"`
	Scale     float64 `json:"scale"`
}

// LowPass suppresses high frequencies.
type LowPass struct {
	Smoothing float64 `json:"smoothing"`
}

// ChannelMix mixes the left and right channels into each other.
type ChannelMix struct {
	LeftToLeft   float64 `json:"leftToLeft"`
	LeftToRight  float64 `json:"leftToRight"`
	RightToLeft  float64 `json:"rightToLeft"`
	RightToRight float64 `json:"rightToRight"`
}

// Echo repeats the signal with decay.
type Echo struct {
	Delay float64 `json:"delay"`
	Decay float64 `json:"decay"`
}

// Filters is the full filter chain of a player. A nil member means the filter
// was never set and must not be forwarded; a non-nil member counts as changed
// from default even when it encodes the neutral configuration, because the
// node may hold earlier state that needs resetting.
type Filters struct {
	Volume     *float64    `json:"volume,omitempty"`
	Equalizer  []EQBand    `json:"equalizer,omitempty"`
	Karaoke    *Karaoke    `json:"karaoke,omitempty"`
	Timescale  *Timescale  `json:"timescale,omitempty"`
	Tremolo    *Tremolo    `json:"tremolo,omitempty"`
	Vibrato    *Vibrato    `json:"vibrato,omitempty"`
	Rotation   *Rotation   `json:"rotation,omitempty"`
	Distortion *Distortion `json:"distortion,omitempty"`
	LowPass    *LowPass    `json:"lowPass,omitempty"`
	ChannelMix *ChannelMix `json:"channelMix,omitempty"`
	Echo       *Echo       `json:"echo,omitempty"`
}

// Changed lists the names of filters that have been set.
func (f *Filters) Changed() []string {
	if f == nil {
		return nil
	}
	var names []string
	if f.Volume != nil {
		names = append(names, FilterVolume)
	}
	if len(f.Equalizer) > 0 {
		names = append(names, FilterEqualizer)
	}
	if f.Karaoke != nil {
		names = append(names, FilterKaraoke)
	}
	if f.Timescale != nil {
		names = append(names, FilterTimescale)
	}
	if f.Tremolo != nil {
		names = append(names, FilterTremolo)
	}
	if f.Vibrato != nil {
		names = append(names, FilterVibrato)
	}
	if f.Rotation != nil {
		names = append(names, FilterRotation)
	}
	if f.Distortion != nil {
		names = append(names, FilterDistortion)
	}
	if f.LowPass != nil {
		names = append(names, FilterLowPass)
	}
	if f.ChannelMix != nil {
		names = append(names, FilterChannelMix)
	}
	if f.Echo != nil {
		names = append(names, FilterEcho)
	}
	return names
}

// IsEmpty reports whether no filter has been set at all.
func (f *Filters) IsEmpty() bool {
	return f == nil || len(f.Changed()) == 0
}

// Strip returns a copy with every filter the given node capability set does
// not advertise removed. Unsupported filters are dropped silently rather than
// sent as resets, so node-side state for filters the node never had is left
// untouched.
func (f *Filters) Strip(supported map[string]bool) *Filters {
	if f == nil {
		return nil
	}
	out := &Filters{}
	if supported[FilterVolume] {
		out.Volume = f.Volume
	}
	if supported[FilterEqualizer] {
		out.Equalizer = f.Equalizer
	}
	if supported[FilterKaraoke] {
		out.Karaoke = f.Karaoke
	}
	if supported[FilterTimescale] {
		out.Timescale = f.Timescale
	}
	if supported[FilterTremolo] {
		out.Tremolo = f.Tremolo
	}
	if supported[FilterVibrato] {
		out.Vibrato = f.Vibrato
	}
	if supported[FilterRotation] {
		out.Rotation = f.Rotation
	}
	if supported[FilterDistortion] {
		out.Distortion = f.Distortion
	}
	if supported[FilterLowPass] {
		out.LowPass = f.LowPass
	}
	if supported[FilterChannelMix] {
		out.ChannelMix = f.ChannelMix
	}
	if supported[FilterEcho] {
		out.Echo = f.Echo
	}
	return out
}

// Merge overlays other onto f and returns the result. With resetNotSet the
// result contains only what other specifies, every other filter reverting to
// unset (replace-all); otherwise unspecified filters keep their value (merge).
func (f *Filters) Merge(other *Filters, resetNotSet bool) *Filters {
	if resetNotSet || f == nil {
		if other == nil {
			return &Filters{}
		}
		cp := *other
		return &cp
	}
	out := *f
	if other == nil {
		return &out
	}
	if other.Volume != nil {
		out.Volume = other.Volume
	}
	if other.Equalizer != nil {
		out.Equalizer = other.Equalizer
	}
	if other.Karaoke != nil {
		out.Karaoke = other.Karaoke
	}
	if other.Timescale != nil {
		out.Timescale = other.Timescale
	}
	if other.Tremolo != nil {
		out.Tremolo = other.Tremolo
	}
	if other.Vibrato != nil {
		out.Vibrato = other.Vibrato
	}
	if other.Rotation != nil {
		out.Rotation = other.Rotation
	}
	if other.Distortion != nil {
		out.Distortion = other.Distortion
	}
	if other.LowPass != nil {
		out.LowPass = other.LowPass
	}
	if other.ChannelMix != nil {
		out.ChannelMix = other.ChannelMix
	}
	if other.Echo != nil {
		out.Echo = other.Echo
	}
	return &out
}
