// Package logger is a thin leveled facade over the standard log package.
// Every component logs through it so the level prefix format stays uniform.
package logger

import "log"

// Init sets the process-wide log flags. Called once from main.
func Init() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
}

func Infof(format string, v ...any) {
	leveled("INFO", format, v...)
}

func Warnf(format string, v ...any) {
	leveled("WARN", format, v...)
}

func Errorf(format string, v ...any) {
	leveled("ERROR", format, v...)
}

func Debugf(format string, v ...any) {
	leveled("DEBUG", format, v...)
}

// Fatalf logs and exits; reserved for unrecoverable startup failures.
func Fatalf(format string, v ...any) {
	log.Fatalf("[FATAL] "+format, v...)
}

func leveled(level, format string, v ...any) {
	log.Printf("["+level+"] "+format, v...)
}
