package enums

type SwipeAction string

const (
	SwipeActionLike      SwipeAction = "LIKE"
	SwipeActionSuperLike SwipeAction = "SUPER_LIKE"
	SwipeActionPass      SwipeAction = "PASS"
)

func (a SwipeAction) IsPositive() bool {
	return a == SwipeActionLike || a == SwipeActionSuperLike
}
