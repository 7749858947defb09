package model

// ActionKind enumerates every recorded action kind. The set is closed:
// handlers switch exhaustively over it instead of dispatching through methods,
// so an unhandled kind is a compile-time-visible gap rather than a silent
// fallthrough.
type ActionKind int

// Action kinds, in declaration order only; replay order is ApplyRank.
const (
	ActionAdd ActionKind = iota
	ActionEdit
	ActionDelete
	ActionRecover
	ActionDestroy
	ActionRename
	ActionMoveFrom
	ActionMoveTo
	ActionShare
	ActionBranch
	ActionPin
	ActionUnpin
	ActionLabel
)

// String returns the kind name as it appears in logs and status lines.
func (k ActionKind) String() string {
	switch k {
	case ActionAdd:
		return "add"
	case ActionEdit:
		return "edit"
	case ActionDelete:
		return "delete"
	case ActionRecover:
		return "recover"
	case ActionDestroy:
		return "destroy"
	case ActionRename:
		return "rename"
	case ActionMoveFrom:
		return "move-from"
	case ActionMoveTo:
		return "move-to"
	case ActionShare:
		return "share"
	case ActionBranch:
		return "branch"
	case ActionPin:
		return "pin"
	case ActionUnpin:
		return "unpin"
	case ActionLabel:
		return "label"
	}

	return "unknown"
}

// Action is the tagged payload of a revision. Only the fields relevant to
// Kind are set:
//
//	Rename             OldName, NewName
//	MoveFrom           Other = destination path of the pair
//	MoveTo             Other = source path of the pair
//	Share              Other = the path gaining access to the item
//	Branch             FromItem = the shared identity being left
//	Pin                Version = the frozen version
//	Label              Name = the tag name
type Action struct {
	Kind     ActionKind
	OldName  string
	NewName  string
	Other    Path
	FromItem ItemID
	Version  int
	Name     string
}

// Replay ranks. Within one changeset, same-timestamp revisions apply in rank
// order so that a path exists before it is written and is written before it
// is removed. Labels follow the commit itself.
const (
	RankCreate  = 0 // MoveTo, Share, Add, Recover
	RankContent = 1 // Edit, Pin, Unpin, Rename
	RankRemove  = 2 // Delete, MoveFrom
	RankDestroy = 3 // Destroy
	RankLabel   = 4 // Label
)

// ApplyRank returns the replay rank of the action.
func (a Action) ApplyRank() int {
	switch a.Kind {
	case ActionMoveTo, ActionShare, ActionAdd, ActionRecover:
		return RankCreate
	case ActionEdit, ActionPin, ActionUnpin, ActionRename:
		return RankContent
	case ActionDelete, ActionMoveFrom:
		return RankRemove
	case ActionDestroy:
		return RankDestroy
	case ActionLabel:
		return RankLabel
	}

	return RankContent
}
