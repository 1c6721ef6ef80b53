package config

// FeatureConfig holds the frame geometry and per-analyzer parameters shared by
// the signal analyzers
type FeatureConfig struct {
	// Spectral Analysis
	WindowSize int `json:"window_size" mapstructure:"window_size"`
	HopSize    int `json:"hop_size" mapstructure:"hop_size"`
	MelBands   int `json:"mel_bands" mapstructure:"mel_bands"`

	// Timbre
	MFCCCoefficients int     `json:"mfcc_coefficients" mapstructure:"mfcc_coefficients"`
	TopDB            float64 `json:"top_db" mapstructure:"top_db"`
	RolloffPercent   float64 `json:"rolloff_percent" mapstructure:"rolloff_percent"`

	// Chroma
	ChromaWindowSize int     `json:"chroma_window_size" mapstructure:"chroma_window_size"`
	ChromaOctaves    int     `json:"chroma_octaves" mapstructure:"chroma_octaves"`
	ChromaMinFreq    float64 `json:"chroma_min_freq" mapstructure:"chroma_min_freq"`

	// Harmonic/percussive separation
	HPSSKernel int     `json:"hpss_kernel" mapstructure:"hpss_kernel"`
	HPSSPower  float64 `json:"hpss_power" mapstructure:"hpss_power"`

	// Tempo and beats
	StartBPM       float64 `json:"start_bpm" mapstructure:"start_bpm"`
	MaxTempo       float64 `json:"max_tempo" mapstructure:"max_tempo"`
	TempoACSeconds float64 `json:"tempo_ac_seconds" mapstructure:"tempo_ac_seconds"`
	Tightness      float64 `json:"tightness" mapstructure:"tightness"`
	PulseThreshold float64 `json:"pulse_threshold" mapstructure:"pulse_threshold"`
}

// DefaultFeatureConfig returns the parameters the feature calibration was tuned on
func DefaultFeatureConfig() *FeatureConfig {
	return &FeatureConfig{
		WindowSize:       2048,
		HopSize:          512,
		MelBands:         128,
		MFCCCoefficients: 13,
		TopDB:            80,
		RolloffPercent:   0.85,
		ChromaWindowSize: 8192,
		ChromaOctaves:    7,
		ChromaMinFreq:    32.70319566257483, // C1
		HPSSKernel:       31,
		HPSSPower:        2,
		StartBPM:         120,
		MaxTempo:         320,
		TempoACSeconds:   8,
		Tightness:        100,
		PulseThreshold:   0.01,
	}
}

// WithDefaults returns a copy with every unset field taken from the defaults
func (c *FeatureConfig) WithDefaults() *FeatureConfig {
	d := DefaultFeatureConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.WindowSize <= 0 {
		out.WindowSize = d.WindowSize
	}
	if out.HopSize <= 0 {
		out.HopSize = d.HopSize
	}
	if out.MelBands <= 0 {
		out.MelBands = d.MelBands
	}
	if out.MFCCCoefficients <= 0 {
		out.MFCCCoefficients = d.MFCCCoefficients
	}
	if out.TopDB <= 0 {
		out.TopDB = d.TopDB
	}
	if out.RolloffPercent <= 0 || out.RolloffPercent >= 1 {
		out.RolloffPercent = d.RolloffPercent
	}
	if out.ChromaWindowSize <= 0 {
		out.ChromaWindowSize = d.ChromaWindowSize
	}
	if out.ChromaOctaves <= 0 {
		out.ChromaOctaves = d.ChromaOctaves
	}
	if out.ChromaMinFreq <= 0 {
		out.ChromaMinFreq = d.ChromaMinFreq
	}
	if out.HPSSKernel <= 0 {
		out.HPSSKernel = d.HPSSKernel
	}
	if out.HPSSPower <= 0 {
		out.HPSSPower = d.HPSSPower
	}
	if out.StartBPM <= 0 {
		out.StartBPM = d.StartBPM
	}
	if out.MaxTempo <= 0 {
		out.MaxTempo = d.MaxTempo
	}
	if out.TempoACSeconds <= 0 {
		out.TempoACSeconds = d.TempoACSeconds
	}
	if out.Tightness <= 0 {
		out.Tightness = d.Tightness
	}
	if out.PulseThreshold <= 0 {
		out.PulseThreshold = d.PulseThreshold
	}
	return &out
}
