package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewTemplateCmd создаёт группу команд для шаблонов сообщений.
func NewTemplateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage message templates (comments, broadcast)",
	}

	cmd.AddCommand(
		newTemplateListCmd(clientFn, outputFn),
		newTemplateCreateCmd(clientFn, outputFn),
		newTemplateUpdateCmd(clientFn, outputFn),
		newTemplateDeleteCmd(clientFn, outputFn),
	)

	return cmd
}

var templateHeaders = []string{"ID", "TITLE", "ACTIVE", "BODY"}

func templateRow(t Template) []string {
	return []string{strconv.FormatInt(t.ID, 10), t.Title, strconv.FormatBool(t.IsActive), t.Body}
}

func newTemplateListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list FEATURE",
		Short: "List templates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			templates, err := clientFn().ListTemplates(args[0])
			if err != nil {
				return err
			}

			rows := make([][]string, len(templates))
			for i, t := range templates {
				rows[i] = templateRow(t)
			}
			outputFn().Print(templateHeaders, rows, templates)
			return nil
		},
	}
}

func newTemplateCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req TemplateRequest
	var inactive bool

	cmd := &cobra.Command{
		Use:   "create FEATURE",
		Short: "Create a template; {a|b|c} blocks are picked at random when sending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if inactive {
				active := false
				req.IsActive = &active
			}

			t, err := clientFn().CreateTemplate(args[0], req)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Template created: %d", t.ID))
			out.Print(templateHeaders, [][]string{templateRow(*t)}, t)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Title, "title", "", "Template title")
	cmd.Flags().StringVar(&req.Body, "body", "", "Template body")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "Create the template disabled")
	cmd.MarkFlagRequired("title")
	cmd.MarkFlagRequired("body")

	return cmd
}

func newTemplateUpdateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var title, body string
	var active bool

	cmd := &cobra.Command{
		Use:   "update FEATURE ID",
		Short: "Update a template",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid template id %q", args[1])
			}

			var req UpdateTemplateRequest
			if cmd.Flags().Changed("title") {
				req.Title = &title
			}
			if cmd.Flags().Changed("body") {
				req.Body = &body
			}
			if cmd.Flags().Changed("active") {
				req.IsActive = &active
			}

			t, err := clientFn().UpdateTemplate(args[0], id, req)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Template updated: %d", t.ID))
			out.Print(templateHeaders, [][]string{templateRow(*t)}, t)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&body, "body", "", "New body")
	cmd.Flags().BoolVar(&active, "active", true, "Enable or disable the template")

	return cmd
}

func newTemplateDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete FEATURE ID",
		Short: "Delete a template",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid template id %q", args[1])
			}

			if err := clientFn().DeleteTemplate(args[0], id); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Template deleted: %d", id))
			return nil
		},
	}
}
