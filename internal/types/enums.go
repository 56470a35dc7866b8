package types

// CSState is the curation state of a connectivity statement.
type CSState string

const (
	CSStateDraft        CSState = "draft"
	CSStateComposeNow   CSState = "compose_now"
	CSStateInProgress   CSState = "in_progress"
	CSStateToBeReviewed CSState = "to_be_reviewed"
	CSStateRevise       CSState = "revise"
	CSStateRejected     CSState = "rejected"
	CSStateNPOApproved  CSState = "npo_approved"
	CSStateExported     CSState = "exported"
	CSStateDeprecated   CSState = "deprecated"
	CSStateInvalid      CSState = "invalid"
)

// SentenceState is the curation state of a sentence.
type SentenceState string

const (
	SentenceStateOpen               SentenceState = "open"
	SentenceStateNeedsFurtherReview SentenceState = "needs_further_review"
	SentenceStateComposeLater       SentenceState = "compose_later"
	SentenceStateReadyToCompose     SentenceState = "ready_to_compose"
	SentenceStateComposeNow         SentenceState = "compose_now"
	SentenceStateCompleted          SentenceState = "completed"
	SentenceStateExcluded           SentenceState = "excluded"
)

type ViaType string

const (
	ViaTypeAxon        ViaType = "AXON"
	ViaTypeDendrite    ViaType = "DENDRITE"
	ViaTypeSensoryAxon ViaType = "SENSORY_AXON"
)

type DestinationType string

const (
	DestinationTypeAxonTerminal     DestinationType = "AXON_TERMINAL"
	DestinationTypeAfferentTerminal DestinationType = "AFFERENT_TERMINAL"
	DestinationTypeUnknown          DestinationType = "UNKNOWN"
)

type Laterality string

const (
	LateralityLeft  Laterality = "LEFT"
	LateralityRight Laterality = "RIGHT"
)

type Projection string

const (
	ProjectionIpsi   Projection = "IPSI"
	ProjectionContra Projection = "CONTRA"
	ProjectionBi     Projection = "BI"
)

type CircuitType string

const (
	CircuitTypeSensory    CircuitType = "SENSORY"
	CircuitTypeMotor      CircuitType = "MOTOR"
	CircuitTypeIntrinsic  CircuitType = "INTRINSIC"
	CircuitTypeProjection CircuitType = "PROJECTION"
	CircuitTypeAnaxonic   CircuitType = "ANAXONIC"
)

// NoteType distinguishes curator notes from machine-authored ones.
type NoteType string

const (
	NoteTypePlain      NoteType = "plain"
	NoteTypeDiffering  NoteType = "differing"
	NoteTypeTransition NoteType = "transition"
	NoteTypeAlert      NoteType = "alert"
)

// RelationshipType classifies how a custom-relationship result binds
// to a statement.
type RelationshipType string

const (
	RelationshipTripleSingle    RelationshipType = "TRIPLE_SINGLE"
	RelationshipTripleMulti     RelationshipType = "TRIPLE_MULTI"
	RelationshipText            RelationshipType = "TEXT"
	RelationshipAnatomicalMulti RelationshipType = "ANATOMICAL_MULTI"
)

// MetaKind marks an anatomical-entity meta that has been typed as a
// cortical region or laminar layer. Bare metas carry the empty kind.
type MetaKind string

const (
	MetaKindBare   MetaKind = ""
	MetaKindRegion MetaKind = "region"
	MetaKindLayer  MetaKind = "layer"
)
