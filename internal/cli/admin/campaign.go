package admin

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/cloo-solutions/supportdesk/internal/domain"
	"github.com/cloo-solutions/supportdesk/internal/service"
	"github.com/spf13/cobra"
)

func CampaignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campaign",
		Short: "Manage WhatsApp template campaigns",
		Long:  "Send template campaigns and list past runs",
	}

	cmd.AddCommand(CampaignSendCmd())
	cmd.AddCommand(CampaignListCmd())

	return cmd
}

type campaignSendOptions struct {
	name           string
	from           string
	template       string
	language       string
	componentsFile string
	recipients     []string
	recipientsFile string
	async          bool
	output         string
}

func CampaignSendCmd() *cobra.Command {
	var opts campaignSendOptions

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a template to a list of recipients",
		Long: `Create a campaign and send the template to every recipient in order.

With --async the campaign is only created as pending and the server's
campaign worker sends it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCampaignSend(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.name, "name", "", "Campaign name")
	cmd.Flags().StringVar(&opts.from, "from", "", "Sender phone number shown in the dashboard")
	cmd.Flags().StringVarP(&opts.template, "template", "t", "", "Approved template name")
	cmd.Flags().StringVarP(&opts.language, "language", "l", domain.DefaultTemplateLanguage, "Template language code")
	cmd.Flags().StringVar(&opts.componentsFile, "components", "", "JSON file with template components")
	cmd.Flags().StringSliceVarP(&opts.recipients, "recipient", "r", nil, "Recipient phone number (repeatable)")
	cmd.Flags().StringVar(&opts.recipientsFile, "recipients-file", "", "File with one recipient phone number per line")
	cmd.Flags().BoolVar(&opts.async, "async", false, "Only create the campaign; the worker sends it")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "text", "Output format (text or json)")
	_ = cmd.MarkFlagRequired("template")

	return cmd
}

func runCampaignSend(cmd *cobra.Command, opts campaignSendOptions) error {
	ctx := cmd.Context()

	recipients, err := collectRecipients(opts.recipients, opts.recipientsFile)
	if err != nil {
		return err
	}

	var components []domain.TemplateComponent
	if opts.componentsFile != "" {
		data, err := os.ReadFile(opts.componentsFile)
		if err != nil {
			return fmt.Errorf("failed to read components: %w", err)
		}
		if err := json.Unmarshal(data, &components); err != nil {
			return fmt.Errorf("failed to parse components: %w", err)
		}
		domain.NormalizeComponentTypes(components)
		if err := domain.ValidateComponents(components); err != nil {
			return err
		}
	}

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	input := service.CreateCampaignInput{
		Owner:              a.cfg.Owner,
		Name:               opts.name,
		FromNumber:         opts.from,
		TemplateName:       opts.template,
		TemplateLanguage:   opts.language,
		TemplateComponents: components,
		Recipients:         recipients,
	}

	var result *service.DispatchResult
	if opts.async {
		campaign, err := a.campaigns.Create(ctx, input)
		if err != nil {
			return err
		}
		result = &service.DispatchResult{CampaignID: campaign.ID, Status: campaign.Status, Errors: []string{}}
	} else {
		result, err = a.campaigns.Send(ctx, input)
		if err != nil {
			return err
		}
	}

	if opts.output == "json" {
		return printJSON(result)
	}

	fmt.Printf("Campaign %s: %s (sent %d, failed %d)\n", result.CampaignID, result.Status, result.SentCount, result.ErrorCount)
	for _, e := range result.Errors {
		fmt.Printf("  %s\n", e)
	}
	return nil
}

func collectRecipients(flagged []string, file string) ([]string, error) {
	recipients := append([]string{}, flagged...)
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read recipients: %w", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			if line = strings.TrimSpace(line); line != "" && !strings.HasPrefix(line, "#") {
				recipients = append(recipients, line)
			}
		}
	}
	if len(recipients) == 0 {
		return nil, domain.ErrMissingRecipients
	}
	return recipients, nil
}

func CampaignListCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List campaigns",
		Long:  "List the owner's campaigns, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runCampaignList(cmd, outputFormat, limit, cursor)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

func runCampaignList(cmd *cobra.Command, outputFormat string, limit int, cursor string) error {
	ctx := cmd.Context()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	page, err := a.campaigns.List(ctx, a.cfg.Owner, cursor, limit)
	if err != nil {
		return fmt.Errorf("failed to list campaigns: %w", err)
	}

	if outputFormat == "json" {
		data := make([]map[string]interface{}, len(page.Items))
		for i, c := range page.Items {
			data[i] = map[string]interface{}{
				"id":          c.ID,
				"name":        c.Name,
				"template":    c.TemplateName,
				"status":      c.Status,
				"recipients":  len(c.Recipients),
				"sent_count":  c.SentCount,
				"error_count": c.ErrorCount,
				"created_at":  c.CreatedAt,
			}
		}
		return printJSON(map[string]interface{}{
			"items":    data,
			"cursor":   page.Cursor,
			"has_more": page.HasMore,
		})
	}

	if len(page.Items) == 0 {
		fmt.Println("No campaigns found")
		return nil
	}
	fmt.Println("Campaigns:")
	for _, c := range page.Items {
		fmt.Printf("  %s: %s [%s] sent %d/%d (created: %s)\n",
			c.ID, c.TemplateName, c.Status, c.SentCount, len(c.Recipients), c.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	if page.HasMore && page.Cursor != "" {
		fmt.Printf("\nMore results available. Use --cursor %s\n", page.Cursor)
	}
	return nil
}
