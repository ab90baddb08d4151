package kami

type KamiResponse[T any] struct {
	StatusCode int            `json:"statusCode"`
	Success    bool           `json:"success"`
	Data       T              `json:"data"`
	Error      map[string]any `json:"error"`
}

type (
	SubnetMetagraphResponse   = KamiResponse[SubnetMetagraph]
	LatestBlockResponse       = KamiResponse[LatestBlock]
	KeyringPairInfoResponse   = KamiResponse[KeyringPairInfo]
	SubnetHyperparamsResponse = KamiResponse[SubnetHyperparams]
	SignMessageResponse       = KamiResponse[SignMessage]
	ExtrinsicHashResponse     = KamiResponse[string]
)

// SubnetMetagraph carries the per-uid columns the validator reads. Kami
// returns more fields; they are ignored when decoding.
type SubnetMetagraph struct {
	Netuid                     int       `json:"netuid"`
	Name                       string    `json:"name"`
	OwnerHotkey                string    `json:"ownerHotkey"`
	OwnerColdkey               string    `json:"ownerColdkey"`
	Block                      int       `json:"block"`
	Tempo                      int       `json:"tempo"`
	LastStep                   int       `json:"lastStep"`
	BlocksSinceLastStep        int       `json:"blocksSinceLastStep"`
	MinAllowedWeights          int       `json:"minAllowedWeights"`
	MaxAllowedWeights          int       `json:"maxAllowedWeights"`
	WeightsVersion             int       `json:"weightsVersion"`
	WeightsRateLimit           int       `json:"weightsRateLimit"`
	ActivityCutoff             int       `json:"activityCutoff"`
	MaxValidators              int       `json:"maxValidators"`
	NumUids                    int       `json:"numUids"`
	CommitRevealWeightsEnabled bool      `json:"commitRevealWeightsEnabled"`
	Hotkeys                    []string  `json:"hotkeys"`
	Coldkeys                   []string  `json:"coldkeys"`
	Active                     []bool    `json:"active"`
	ValidatorPermit            []bool    `json:"validatorPermit"`
	LastUpdate                 []int     `json:"lastUpdate"`
	BlockAtRegistration        []int     `json:"blockAtRegistration"`
	AlphaStake                 []float64 `json:"alphaStake"`
	TaoStake                   []float64 `json:"taoStake"`
	TotalStake                 []float64 `json:"totalStake"`
}

type LatestBlock struct {
	ParentHash     string `json:"parentHash"`
	BlockNumber    int    `json:"blockNumber"`
	StateRoot      string `json:"stateRoot"`
	ExtrinsicsRoot string `json:"extrinsicsRoot"`
}

type KeyringPair struct {
	Address    string                 `json:"address"`
	AddressRaw map[string]interface{} `json:"addressRaw"`
	IsLocked   bool                   `json:"isLocked"`
	Meta       map[string]interface{} `json:"meta"`
	PublicKey  map[string]interface{} `json:"publicKey"`
	Type       string                 `json:"type"`
}

type KeyringPairInfo struct {
	KeyringPair   KeyringPair `json:"keyringPair"`
	WalletColdkey string      `json:"walletColdkey"`
}

type SubnetHyperparams struct {
	ImmunityPeriod             int  `json:"immunityPeriod"`
	MinAllowedWeights          int  `json:"minAllowedWeights"`
	MaxWeightsLimit            int  `json:"maxWeightsLimit"`
	Tempo                      int  `json:"tempo"`
	WeightsVersion             int  `json:"weightsVersion"`
	WeightsRateLimit           int  `json:"weightsRateLimit"`
	ActivityCutoff             int  `json:"activityCutoff"`
	RegistrationAllowed        bool `json:"registrationAllowed"`
	MaxValidators              int  `json:"maxValidators"`
	CommitRevealPeriod         int  `json:"commitRevealPeriod"`
	CommitRevealWeightsEnabled bool `json:"commitRevealWeightsEnabled"`
}

type SetWeightsParams struct {
	Netuid     int   `json:"netuid"`
	Dests      []int `json:"dests"`
	Weights    []int `json:"weights"`
	VersionKey int   `json:"versionKey"`
}

type SignMessageParams struct {
	Message string `json:"message"`
}

type SignMessage struct {
	Signature string `json:"signature"`
}
