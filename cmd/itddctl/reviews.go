package main

import (
	"github.com/itdd/backend/internal/app"
	appresolution "github.com/itdd/backend/internal/application/resolution"
	"github.com/itdd/backend/internal/domain/shared"
	"github.com/itdd/backend/internal/interfaces/http/dto"
	"github.com/spf13/cobra"
)

func newReviewsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reviews",
		Short: "Work the manual merge review queue",
	}
	cmd.AddCommand(newReviewsListCmd(c), newReviewsResolveCmd(c))
	return cmd
}

func newReviewsListCmd(c *cli) *cobra.Command {
	var (
		sf     scopeFlags
		filter = shared.DefaultFilter()
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending reviews of a scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := sf.key()
			if err != nil {
				return err
			}
			return c.withApp(cmd.Context(), nil, func(a *app.App) error {
				page, err := a.Review.ListPending(cmd.Context(), key, filter)
				if err != nil {
					return err
				}
				return c.print(shared.Paginated[dto.ReviewResponse]{
					Items:      dto.ToReviewResponses(page.Items),
					Total:      page.Total,
					Page:       page.Page,
					PageSize:   page.PageSize,
					TotalPages: page.TotalPages,
				})
			})
		},
	}
	sf.register(cmd)
	cmd.Flags().IntVar(&filter.Page, "page", filter.Page, "Page number")
	cmd.Flags().IntVar(&filter.PageSize, "page-size", filter.PageSize, "Page size")
	cmd.Flags().StringVar(&filter.OrderBy, "order-by", "", "Sort field (created_at, updated_at, score, vendor_score)")
	cmd.Flags().StringVar(&filter.OrderDir, "order-dir", "", "Sort direction (asc or desc)")
	return cmd
}

func newReviewsResolveCmd(c *cli) *cobra.Command {
	var req appresolution.ResolveReviewRequest
	cmd := &cobra.Command{
		Use:   "resolve ID",
		Short: "Merge or reject a flagged pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), nil, func(a *app.App) error {
				res, err := a.Review.Resolve(cmd.Context(), args[0], req)
				if err != nil {
					return err
				}
				return c.print(dto.ResolveReviewResponse{
					Review:     dto.ToReviewResponse(res.Review),
					SurvivorID: res.SurvivorID,
					LoserID:    res.LoserID,
				})
			})
		},
	}
	cmd.Flags().StringVar(&req.Decision, "decision", "", "merge or reject")
	cmd.Flags().StringVar(&req.Reviewer, "reviewer", "", "Who made the decision")
	cmd.Flags().StringVar(&req.Note, "note", "", "Free-text note")
	_ = cmd.MarkFlagRequired("decision")
	_ = cmd.MarkFlagRequired("reviewer")
	return cmd
}
