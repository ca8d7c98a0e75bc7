// Package logx is soulverse's structured logging layer on zerolog.
//
// Console output is human readable with a short caller. logging.format
// "json" switches stdout to JSON lines; the file sink is always JSON.
// An optional alert sink forwards warnings to an Alerter, such as a push
// topic, under a rate limit.
package logx
