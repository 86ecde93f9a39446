package crowdsec

// Reputation is the subset of the CTI smoke response Gatewatch exposes.
type Reputation struct {
	IP                   string           `json:"ip"`
	IPRange              string           `json:"ip_range,omitempty"`
	IPRangeScore         int              `json:"ip_range_score"`
	ASName               string           `json:"as_name,omitempty"`
	ASNum                int              `json:"as_num,omitempty"`
	ReverseDNS           *string          `json:"reverse_dns,omitempty"`
	BackgroundNoise      string           `json:"background_noise,omitempty"`
	BackgroundNoiseScore int              `json:"background_noise_score"`
	Location             Location         `json:"location"`
	History              History          `json:"history"`
	Behaviors            []Behavior       `json:"behaviors"`
	AttackDetails        []Behavior       `json:"attack_details"`
	MitreTechniques      []Behavior       `json:"mitre_techniques"`
	Classifications      Classifications  `json:"classifications"`
	Scores               Scores           `json:"scores"`
	TargetCountries      map[string]int   `json:"target_countries,omitempty"`
	References           []map[string]any `json:"references,omitempty"`
}

type Location struct {
	Country   *string  `json:"country"`
	City      *string  `json:"city"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type History struct {
	FirstSeen *string `json:"first_seen"`
	LastSeen  *string `json:"last_seen"`
	FullAge   int     `json:"full_age"`
	DaysAge   int     `json:"days_age"`
}

// Behavior is the shared shape of behaviors, attack details and MITRE techniques.
type Behavior struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

type Classifications struct {
	FalsePositives  []Behavior `json:"false_positives"`
	Classifications []Behavior `json:"classifications"`
}

type ScoreSet struct {
	Aggressiveness int `json:"aggressiveness"`
	Threat         int `json:"threat"`
	Trust          int `json:"trust"`
	Anomaly        int `json:"anomaly"`
	Total          int `json:"total"`
}

type Scores struct {
	Overall   ScoreSet `json:"overall"`
	LastDay   ScoreSet `json:"last_day"`
	LastWeek  ScoreSet `json:"last_week"`
	LastMonth ScoreSet `json:"last_month"`
}

// Malicious is a coarse verdict: high overall threat or aggressiveness and
// no false-positive classification.
func (r *Reputation) Malicious() bool {
	if r == nil || len(r.Classifications.FalsePositives) > 0 {
		return false
	}
	return r.Scores.Overall.Threat >= 4 || r.Scores.Overall.Aggressiveness >= 4
}
