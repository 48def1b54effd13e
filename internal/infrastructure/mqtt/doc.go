// Package mqtt provides the MQTT client for the platform boundary.
//
// This package wraps eclipse/paho.mqtt.golang with connection management,
// automatic reconnection, subscription restoration, and Last Will and
// Testament handling. The bridge's entity-layer peer (the smart-home
// platform) talks to us exclusively through these topics.
//
// # Topic layout
//
// All topics are namespaced by the bridge instance ID:
//
//	{instance}/command/{device}       platform → bridge
//	{instance}/ack/{device}           bridge → platform
//	{instance}/state/{device}         bridge → platform (retained)
//	{instance}/availability/{device}  bridge → platform (retained)
//	{instance}/health/bridge          bridge → platform (retained)
//	{instance}/status                 session status + LWT (retained)
//
// # Thread Safety
//
// All exported methods are safe for concurrent use.
package mqtt
