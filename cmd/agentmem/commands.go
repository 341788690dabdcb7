package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/oceanbase/agentmem-go/pkg/core"
	"github.com/oceanbase/agentmem-go/pkg/intelligence"
	"github.com/oceanbase/agentmem-go/pkg/learning"
	"github.com/oceanbase/agentmem-go/pkg/twin"
)

const defaultPruneAge = 30 * 24 * time.Hour

func (c *cli) printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, string(data))
	return err
}

func (c *cli) analyzeCmd() *cobra.Command {
	var compareTo string
	cmd := &cobra.Command{
		Use:   "analyze <text>",
		Short: "Analyze the communication style of a text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg *core.Config
			if path := c.v.GetString("config"); path != "" {
				loaded, err := c.loadConfig()
				if err != nil {
					return err
				}
				cfg = loaded
			}
			analyzer, err := c.analyzer(cfg)
			if err != nil {
				return err
			}

			current := analyzer.Analyze(strings.Join(args, " "))
			if compareTo == "" {
				return c.printJSON(current)
			}

			target := analyzer.Analyze(compareTo)
			if err := c.printJSON(map[string]interface{}{
				"analysis":   current,
				"target":     target,
				"comparison": intelligence.Compare(current, target),
			}); err != nil {
				return err
			}
			if prompt := intelligence.AdaptationPrompt(target, current); prompt != "" {
				fmt.Fprintln(c.out, prompt)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&compareTo, "compare", "", "target text whose style to adapt to")
	return cmd
}

func (c *cli) learnCmd() *cobra.Command {
	var agentID, userID, message, response string
	cmd := &cobra.Command{
		Use:   "learn",
		Short: "Learn from one user message and agent response",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := c.open()
			if err != nil {
				return err
			}
			defer rt.Close()

			report := rt.engine.LearnFromExchange(cmd.Context(), agentID, message, response,
				learning.WithLearnUserID(userID))
			for _, kind := range core.Kinds {
				if ids := report.Stored[kind]; len(ids) > 0 {
					fmt.Fprintf(c.out, "%-20s %d\n", kind, len(ids))
				}
			}
			return report.Err()
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent ID")
	cmd.Flags().StringVar(&userID, "user", "", "user ID")
	cmd.Flags().StringVar(&message, "message", "", "user message")
	cmd.Flags().StringVar(&response, "response", "", "agent response")
	for _, name := range []string{"agent", "message", "response"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (c *cli) promptCmd() *cobra.Command {
	var agentID, userID, base string
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Print an agent's enhanced system prompt",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := c.open()
			if err != nil {
				return err
			}
			defer rt.Close()

			if base == "" {
				registry, err := c.registry()
				if err != nil {
					return err
				}
				if p, ok := registry.Get(agentID); ok {
					base = p.SystemPrompt
				}
			}
			fmt.Fprintln(c.out, rt.engine.EnhancedSystemPrompt(cmd.Context(), agentID, base, userID))
			return nil
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent ID")
	cmd.Flags().StringVar(&userID, "user", "", "user ID")
	cmd.Flags().StringVar(&base, "base", "", "base prompt; defaults to the persona's")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func (c *cli) searchCmd() *cobra.Command {
	var agentID, kind string
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search an agent's memories by content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := c.open()
			if err != nil {
				return err
			}
			defer rt.Close()

			entries, err := rt.memory.Search(cmd.Context(), agentID, args[0],
				core.WithSearchKind(core.Kind(kind)),
				core.WithSearchLimit(limit),
			)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tIMPORTANCE\tTIMESTAMP\tCONTENT")
			for _, e := range entries {
				fmt.Fprintf(w, "%d\t%s\t%.2f\t%s\t%s\n",
					e.ID, e.Kind, e.Importance, e.Timestamp.Format(time.RFC3339), oneLine(e.Content, 60))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent ID")
	cmd.Flags().StringVar(&kind, "kind", "", "restrict to one kind")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func (c *cli) pruneCmd() *cobra.Command {
	var agentID string
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete an agent's memories older than a given age",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := c.open()
			if err != nil {
				return err
			}
			defer rt.Close()

			removed, err := rt.memory.DeleteOlderThan(cmd.Context(), agentID, olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "removed %d entries\n", removed)
			return nil
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent ID")
	cmd.Flags().DurationVar(&olderThan, "older-than", defaultPruneAge, "minimum age of deleted entries")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func (c *cli) personalityCmd() *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "personality",
		Short: "Show an agent's learned personality",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := c.open()
			if err != nil {
				return err
			}
			defer rt.Close()

			p, ok := rt.engine.PersonalityFor(cmd.Context(), agentID)
			if !ok {
				fmt.Fprintf(c.out, "no personality learned for %s\n", agentID)
				return nil
			}
			return c.printJSON(p)
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent ID")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func (c *cli) insightsCmd() *cobra.Command {
	var agentID, userID string
	var limit int
	var store bool
	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Aggregate the style of a user's recent messages to an agent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := c.open()
			if err != nil {
				return err
			}
			defer rt.Close()

			conversations, err := rt.memory.Retrieve(cmd.Context(), agentID,
				core.WithKind(core.KindConversation),
				core.WithUserIDFilter(userID),
				core.WithLimit(limit),
			)
			if err != nil {
				return err
			}
			texts := make([]string, 0, len(conversations))
			for _, e := range conversations {
				texts = append(texts, userTurn(e.Content))
			}

			insights := rt.engine.Analyzer().ExtractInsights(texts)
			if insights == nil {
				fmt.Fprintf(c.out, "no conversations stored for %s\n", agentID)
				return nil
			}
			if store {
				data, err := json.Marshal(insights)
				if err != nil {
					return err
				}
				if _, err := rt.memory.Store(cmd.Context(), agentID, string(data), core.KindLearningInsights,
					core.WithUserID(userID),
					core.WithImportance(0.8),
				); err != nil {
					return err
				}
			}
			return c.printJSON(insights)
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent ID")
	cmd.Flags().StringVar(&userID, "user", "", "restrict to one user")
	cmd.Flags().IntVar(&limit, "limit", 20, "conversations to analyze")
	cmd.Flags().BoolVar(&store, "store", false, "store the result as a learning_insights entry")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

// userTurn extracts the user side of a stored conversation.
func userTurn(content string) string {
	text := strings.TrimPrefix(content, "User: ")
	if i := strings.Index(text, "\nAgent: "); i >= 0 {
		text = text[:i]
	}
	return text
}

func (c *cli) agentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List the persona roster with conversation counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := c.open()
			if err != nil {
				return err
			}
			defer rt.Close()

			svc, err := c.service(rt, false)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tROLE\tCONVERSATIONS\tEXPERTISE")
			for _, a := range svc.Agents(cmd.Context()) {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", a.ID, a.Name, a.Role, a.MemoryEntries, strings.Join(a.Expertise, ", "))
			}
			return w.Flush()
		},
	}
}

func (c *cli) chatCmd() *cobra.Command {
	var agentID, userID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a persona; without --agent the coordinator routes each message",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := c.open()
			if err != nil {
				return err
			}
			defer rt.Close()

			svc, err := c.service(rt, true)
			if err != nil {
				return err
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			fmt.Fprint(c.out, "> ")
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				switch line {
				case "":
					fmt.Fprint(c.out, "> ")
					continue
				case "/quit", "/exit":
					return nil
				}

				var resp *twin.Response
				if agentID == "" {
					resp, err = svc.Coordinate(cmd.Context(), userID, line, nil)
				} else {
					resp, err = svc.Invoke(cmd.Context(), twin.Request{AgentID: agentID, UserID: userID, Message: line})
				}
				if err != nil {
					fmt.Fprintf(c.out, "error: %v\n> ", err)
					continue
				}
				fmt.Fprintf(c.out, "%s: %s\n> ", resp.Agent, resp.Content)
			}
			return scanner.Err()
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "persona ID; empty for the coordinator")
	cmd.Flags().StringVar(&userID, "user", "", "user ID")
	return cmd
}

// oneLine flattens s and cuts it to max runes.
func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
