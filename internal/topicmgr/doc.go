// Package topicmgr keeps the typed definitions of every bus topic the
// service publishes or consumes, so topic names are declared once and can be
// listed and validated at runtime.
//
// Framework topics belong to the host (server lifecycle, errors); module
// topics belong to a feature module and carry its name:
//
//	var TopicInput = topicmgr.DefineModule(topicmgr.TopicConfig{
//		Name:        "conftimeout.input",
//		Module:      "conftimeout",
//		Description: "Inbound messages that arm or cancel a countdown",
//		Example:     `{"topic":"door.front","timeout":30}`,
//	})
//
//	err := topicmgr.Default().Register(TopicInput)
package topicmgr
