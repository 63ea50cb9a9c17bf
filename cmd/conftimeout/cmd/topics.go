package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/nfrund/conftimeout/internal/node"
	"github.com/nfrund/conftimeout/internal/topicmgr"
	"github.com/spf13/cobra"
)

var (
	topicsOutputFormat string
	topicsModuleFilter string
	topicsScopeFilter  string
)

// topicsCmd represents the topics command
var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Explore the bus topics used by the service",
	Long: `The topics command lists and inspects the topics the service publishes and
subscribes to.

Examples:
  conftimeout topics list
  conftimeout topics list --format json
  conftimeout topics get conftimeout.status
  conftimeout topics validate conftimeout.output`,
}

var topicsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all registered topics",
	Args:  cobra.NoArgs,
	RunE:  topicsListHandler,
}

var topicsGetCmd = &cobra.Command{
	Use:   "get <topic-name>",
	Short: "Get detailed information about a specific topic",
	Args:  cobra.ExactArgs(1),
	RunE:  topicsGetHandler,
}

var topicsValidateCmd = &cobra.Command{
	Use:   "validate <topic-name>",
	Short: "Validate a registered topic's name and definition",
	Args:  cobra.ExactArgs(1),
	RunE:  topicsValidateHandler,
}

// TopicDisplay represents a topic for display purposes
type TopicDisplay struct {
	Name          string   `json:"name"`
	Scope         string   `json:"scope"`
	Module        string   `json:"module"`
	Description   string   `json:"description"`
	Example       string   `json:"example"`
	PayloadFields []string `json:"payload_fields,omitempty"`
}

func toDisplay(topic topicmgr.Topic) TopicDisplay {
	return TopicDisplay{
		Name:          topic.Name(),
		Scope:         string(topic.Scope()),
		Module:        topic.Module(),
		Description:   topic.Description(),
		Example:       topic.Example(),
		PayloadFields: topic.PayloadFields(),
	}
}

func loadTopics() (*topicmgr.Manager, error) {
	if err := node.RegisterTopics(); err != nil {
		return nil, fmt.Errorf("failed to initialize topics: %w", err)
	}
	return topicmgr.Default(), nil
}

func topicsListHandler(cmd *cobra.Command, args []string) error {
	manager, err := loadTopics()
	if err != nil {
		return err
	}

	var topicList []topicmgr.Topic
	switch {
	case topicsScopeFilter != "":
		scope := parseScope(topicsScopeFilter)
		if scope == "" {
			return fmt.Errorf("invalid scope '%s', valid scopes: framework, module", topicsScopeFilter)
		}
		for _, topic := range manager.ListByScope(scope) {
			if topicsModuleFilter == "" || topic.Module() == topicsModuleFilter {
				topicList = append(topicList, topic)
			}
		}
	case topicsModuleFilter != "":
		topicList = manager.ListByModule(topicsModuleFilter)
	default:
		topicList = manager.List()
	}

	out := cmd.OutOrStdout()
	switch topicsOutputFormat {
	case "json":
		return displayTopicsJSON(out, topicList)
	case "table":
		if len(topicList) == 0 {
			fmt.Fprintln(out, "No topics found")
			return nil
		}
		displayTopicsTable(out, topicList)
		return nil
	default:
		return fmt.Errorf("unsupported output format '%s', use 'table' or 'json'", topicsOutputFormat)
	}
}

func topicsGetHandler(cmd *cobra.Command, args []string) error {
	manager, err := loadTopics()
	if err != nil {
		return err
	}

	topic, found := manager.Get(args[0])
	if !found {
		return fmt.Errorf("topic '%s' not found, use 'conftimeout topics list' to see all topics", args[0])
	}

	out := cmd.OutOrStdout()
	if topicsOutputFormat == "json" {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(toDisplay(topic))
	}

	fmt.Fprintf(out, "Name:        %s\n", topic.Name())
	fmt.Fprintf(out, "Scope:       %s\n", topic.Scope())
	fmt.Fprintf(out, "Module:      %s\n", topic.Module())
	fmt.Fprintf(out, "Description: %s\n", topic.Description())
	fmt.Fprintf(out, "Example:     %s\n", topic.Example())
	if fields := topic.PayloadFields(); len(fields) > 0 {
		fmt.Fprintf(out, "Fields:      %s\n", strings.Join(fields, ", "))
	}
	return nil
}

func topicsValidateHandler(cmd *cobra.Command, args []string) error {
	manager, err := loadTopics()
	if err != nil {
		return err
	}

	name := args[0]
	if err := manager.ValidateTopicName(name); err != nil {
		return fmt.Errorf("topic name validation failed: %w", err)
	}
	topic, found := manager.Get(name)
	if !found {
		return fmt.Errorf("topic '%s' not found", name)
	}
	if err := topicmgr.NewValidator().ValidateDefinition(topic); err != nil {
		return fmt.Errorf("topic validation failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Topic '%s' is valid\n", topic.Name())
	fmt.Fprintf(out, "   Scope: %s\n", topic.Scope())
	fmt.Fprintf(out, "   Module: %s\n", topic.Module())
	return nil
}

func displayTopicsTable(w io.Writer, topics []topicmgr.Topic) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "NAME\tSCOPE\tMODULE\tDESCRIPTION")
	fmt.Fprintln(tw, "----\t-----\t------\t-----------")
	for _, topic := range topics {
		module := topic.Module()
		if module == "" {
			module = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			topic.Name(),
			topic.Scope(),
			module,
			truncateString(topic.Description(), 60))
	}
}

func displayTopicsJSON(w io.Writer, topics []topicmgr.Topic) error {
	displays := make([]TopicDisplay, len(topics))
	for i, topic := range topics {
		displays[i] = toDisplay(topic)
	}

	output := struct {
		Topics []TopicDisplay `json:"topics"`
		Count  int            `json:"count"`
	}{
		Topics: displays,
		Count:  len(displays),
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

// parseScope converts string scope to topicmgr.TopicScope
func parseScope(scopeStr string) topicmgr.TopicScope {
	switch strings.ToLower(scopeStr) {
	case "framework":
		return topicmgr.ScopeFramework
	case "module":
		return topicmgr.ScopeModule
	default:
		return ""
	}
}

// truncateString truncates a string to maxLen characters, adding "..." if truncated
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}

func init() {
	rootCmd.AddCommand(topicsCmd)
	topicsCmd.AddCommand(topicsListCmd, topicsGetCmd, topicsValidateCmd)

	topicsCmd.PersistentFlags().StringVarP(&topicsOutputFormat, "format", "f", "table", "Output format (table, json)")
	topicsListCmd.Flags().StringVarP(&topicsModuleFilter, "module", "m", "", "Filter topics by module name")
	topicsListCmd.Flags().StringVarP(&topicsScopeFilter, "scope", "s", "", "Filter topics by scope (framework, module)")
}
