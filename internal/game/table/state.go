package table

type Phase string

const (
	PhaseWaiting    Phase = "waiting"
	PhaseStarting   Phase = "starting"
	PhaseInProgress Phase = "in_progress"
	PhaseShowdown   Phase = "showdown"
	PhaseFinished   Phase = "finished"
)

// InHand reports whether a hand is being played or revealed.
func (p Phase) InHand() bool {
	return p == PhaseInProgress || p == PhaseShowdown
}

// Action is the last betting action seen on the table.
type Action struct {
	UserID string  `json:"userId"`
	Action string  `json:"action"`
	Amount float64 `json:"amount"`
}

type Winner struct {
	UserID          string  `json:"userId"`
	Username        string  `json:"username"`
	Amount          float64 `json:"amount"`
	HandDescription string  `json:"handDescription,omitempty"`
}

// ShowdownResult is the full disclosure at the end of a hand.
type ShowdownResult struct {
	Winners []Winner `json:"winners"`
	Pot     float64  `json:"pot"`
}

type ChatMessage struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// HandState is the client's reconciled belief about the table.
type HandState struct {
	Session Session `json:"session"`

	Phase       Phase    `json:"phase"`
	Pot         float64  `json:"pot"`
	CurrentBet  float64  `json:"currentBet"`
	CurrentTurn string   `json:"currentTurnUserId,omitempty"`
	DealerID    string   `json:"dealerId,omitempty"`
	Players     []Player `json:"players"`

	PlayerCards   map[string][]Card `json:"playerCards"`
	CardViewers   UserSet           `json:"cardViewers"`
	CalledPlayers UserSet           `json:"calledPlayers"`

	HasViewedCards  bool `json:"hasViewedCards"`
	CardsDealt      bool `json:"cardsDealt"`
	ControlsVisible bool `json:"controlsVisible"`
	ShowCards       bool `json:"showCards"`

	// PendingHand holds the local hand received before dealing finished.
	PendingHand []Card `json:"-"`

	LastAction     *Action         `json:"lastAction,omitempty"`
	Showdown       *ShowdownResult `json:"showdown,omitempty"`
	WinnerRevealed bool            `json:"winnerRevealed"`

	// RevealScheduled is set once the winner reveal timer runs for this hand.
	RevealScheduled bool `json:"-"`

	Chat []ChatMessage `json:"chat,omitempty"`

	// HandSeq increases on every new hand; timers carry it to detect staleness.
	HandSeq uint64 `json:"handSeq"`

	Closed      bool   `json:"closed"`
	CloseReason string `json:"closeReason,omitempty"`
}

func NewHandState() HandState {
	return HandState{
		Phase:         PhaseWaiting,
		PlayerCards:   make(map[string][]Card),
		CardViewers:   NewUserSet(),
		CalledPlayers: NewUserSet(),
	}
}

func (s HandState) Clone() HandState {
	out := s
	out.Players = ClonePlayers(s.Players)
	out.PlayerCards = make(map[string][]Card, len(s.PlayerCards))
	for id, cards := range s.PlayerCards {
		out.PlayerCards[id] = append([]Card(nil), cards...)
	}
	out.CardViewers = s.CardViewers.Clone()
	out.CalledPlayers = s.CalledPlayers.Clone()
	out.PendingHand = append([]Card(nil), s.PendingHand...)
	if s.LastAction != nil {
		a := *s.LastAction
		out.LastAction = &a
	}
	if s.Showdown != nil {
		sd := *s.Showdown
		sd.Winners = append([]Winner(nil), s.Showdown.Winners...)
		out.Showdown = &sd
	}
	out.Chat = append([]ChatMessage(nil), s.Chat...)
	return out
}

// Self returns the local player's seat, if seated.
func (s HandState) Self(userID string) (Player, bool) {
	if i := FindPlayer(s.Players, userID); i >= 0 {
		return s.Players[i], true
	}
	return Player{}, false
}
