package rtstore

import "fmt"

// Пути — wire-контракт; подписчики завязаны на точную структуру.

func RoomPath(roomID string) string  { return "instances/" + roomID }
func RoomUsers(roomID string) string { return "instances/" + roomID + "/users" }
func MemberPath(roomID, userID string) string {
	return "instances/" + roomID + "/users/" + userID
}

func UserPath(userID string) string { return "Users/" + userID }

func EventsPrefix(roomID string) string { return "GlobalEffects/" + roomID + "/events" }
func EventPath(roomID, eventID string) string {
	return "GlobalEffects/" + roomID + "/events/" + eventID
}
func FlyingMessagesPrefix(roomID string) string {
	return "GlobalEffects/" + roomID + "/flyingMessages"
}
func FlyingMessagePath(roomID, msgID string) string {
	return "GlobalEffects/" + roomID + "/flyingMessages/" + msgID
}

func TaskPath(userID, taskID string) string { return fmt.Sprintf("TaskBuffer/%s/%s", userID, taskID) }
func TimerStatePath(userID string) string   { return "TaskBuffer/" + userID + "/timer_state" }
func HeartbeatPath(userID string) string    { return "TaskBuffer/" + userID + "/heartbeat" }
func LastTaskPath(userID string) string     { return "TaskBuffer/" + userID + "/LastTask" }

func ActiveWorkerPath(userID string) string { return "ActiveWorker/" + userID }

func HistoryPrefix(roomID string) string { return "rooms/" + roomID + "/history" }
func HistoryEntryPath(roomID, entryID string) string {
	return "rooms/" + roomID + "/history/" + entryID
}
func HistoryUpdatePath(roomID string) string { return "rooms/" + roomID + "/historyUpdate" }
