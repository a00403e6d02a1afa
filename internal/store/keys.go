package store

import "fmt"

// Shared-store keys and channels. Every cross-process contract lives here so
// the shape of the store is visible in one place.
const (
	// KeyTradingEnabled holds "true"/"false". An absent key means disabled.
	KeyTradingEnabled = "trading_enabled"

	// KeyManagerHeartbeat holds the ManagerHeartbeat record, rewritten each tick.
	KeyManagerHeartbeat = "strategy_manager:heartbeat"
	// KeyManagerRunning holds "true"/"false" for the manager loop state.
	KeyManagerRunning = "strategy_manager:running"
	// KeyManagerInterval holds the poll interval in seconds as a string.
	KeyManagerInterval = "strategy_manager:interval"
	// KeyManagerEnabledSet holds the strategy id -> enabled mapping.
	KeyManagerEnabledSet = "strategy_manager:enabled_set"
	// KeyManagerError holds a poisoned marker written when the poll loop
	// dies mid-tick. Cleared only by reset.
	KeyManagerError = "strategy_manager:error"

	// KeyRestartLock marks an in-flight restart attempt. Presence = in progress.
	KeyRestartLock = "strategy_manager:restart_lock"
	// KeyRestartAttempt holds the RestartAttempt record with its terminal verdict.
	KeyRestartAttempt = "strategy_manager:restart_attempt"

	// ChannelCommands carries operator Command payloads to the manager process.
	ChannelCommands = "strategy_updates"
	// ChannelSettings carries settings-change notifications to all processes.
	ChannelSettings = "settings:update"
)

// KeySignal is the per-symbol signal key written by the strategy manager.
func KeySignal(symbol string) string {
	return fmt.Sprintf("signal:%s", symbol)
}

// KeyTradeResult is the per-symbol trade result key written by the executor.
func KeyTradeResult(symbol string) string {
	return fmt.Sprintf("trade_result:%s", symbol)
}

// KeyPrice is the per-symbol latest price key written by the collector.
func KeyPrice(symbol string) string {
	return fmt.Sprintf("price:%s", symbol)
}

// KeyRSI is the per-symbol RSI key written by the collector.
func KeyRSI(symbol string) string {
	return fmt.Sprintf("rsi:%s", symbol)
}

// KeySentiment is the per-symbol news-sentiment key written by the collector.
func KeySentiment(symbol string) string {
	return fmt.Sprintf("sentiment:%s", symbol)
}

// KeyStrategyInfo is the per-strategy descriptor key written by the manager
// so other processes can enumerate the registry without importing it.
func KeyStrategyInfo(id string) string {
	return fmt.Sprintf("strategy:%s:info", id)
}

// KeyCommandAck is the reply key for a command's synchronous acknowledgment.
func KeyCommandAck(requestID string) string {
	return fmt.Sprintf("command_ack:%s", requestID)
}

// Patterns for enumeration.
const (
	PatternSignals      = "signal:*"
	PatternStrategyInfo = "strategy:*:info"
)
