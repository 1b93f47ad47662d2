// Package logger provides structured logging for chainkit using zerolog.
//
// Loggers are created from Config (level, json/console format, output
// target) and scoped per component with WithComponent. Chain and task
// events use the Field* keys defined in fields.go so log lines from the
// orchestrator, scheduler and monitor can be correlated by chain name and
// iteration id.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//	  output: "stderr"
//
// # Usage
//
//	log := logger.Get("orchestrator")
//	log.Info("chain completed", logger.Fields(logger.FieldChain, "demo"))
package logger
