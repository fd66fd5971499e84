package servicenow

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/cardhub/connectors/internal/application/hub"
	"github.com/cardhub/connectors/internal/domain/card"
)

// Object types substituted into the routing template.
const (
	ObjectTypeBotDiscovery = "botDiscovery"
	ObjectTypeTask         = "task"
	ObjectTypeCart         = "cart"
)

// Bot workflow identifiers understood by the hub's chat surface.
const (
	WorkflowCreateTask       = "vmw_FILE_GENERAL_TICKET"
	WorkflowViewTask         = "vmw_GET_TICKET_STATUS"
	WorkflowViewTaskByNumber = "vmw_VIEW_SPECIFIC_TICKET"
	WorkflowCatalog          = "ViewItem"
	WorkflowCart             = "ViewCart"
)

// Task card UI types.
const (
	TaskUIStatus       = "status"
	TaskUIConfirmation = "confirmation"
)

const shortDescriptionMaxLength = 160

// backendLink rewrites base so its path is path and its query is query.
func backendLink(base, path string, query url.Values) string {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return ""
	}
	u.Path = "/" + strings.TrimLeft(path, "/")
	u.RawPath = ""
	u.RawQuery = query.Encode()
	u.Fragment = ""
	return u.String()
}

// itemImage points at a catalog picture on the instance. Items without a
// picture report an empty string and get no image.
func itemImage(baseURL, picture string) string {
	if strings.TrimSpace(picture) == "" {
		return ""
	}
	return backendLink(baseURL, picture, nil)
}

// CatalogItemCards renders one card per catalog item, each offering addToCart.
func CatalogItemCards(items []CatalogItem, rc hub.RequestContext, contextID string) []card.Card {
	text := rc.Text()
	cards := make([]card.Card, 0, len(items))
	for _, item := range items {
		addToCart := card.NewAction(http.MethodPut, rc.ActionURL("api/v1/cart"),
			card.WithLabel(text("servicenow.addToCart.title"), text("servicenow.addToCart.description")),
			card.WithParam("itemId", item.SysID),
			card.WithUserInput(card.UserInput{
				ID:        "itemCount",
				Label:     text("servicenow.addToCart.itemCount.label"),
				Format:    card.FormatTextarea,
				MinLength: 1,
			}),
		)
		cards = append(cards, card.New(
			card.WithBackendID(item.SysID),
			card.WithTitle(item.Name),
			card.WithDescription(item.ShortDescription),
			card.WithImage(itemImage(rc.BaseURL, item.Picture)),
			card.WithContextID(contextID),
			card.WithWorkflowID(WorkflowCatalog),
			card.WithActions(addToCart),
		))
	}
	return cards
}

// CartCard renders the cart. An empty cart is a single informational field;
// otherwise the card offers emptyCart and checkout and one child per entry.
func CartCard(cart Cart, rc hub.RequestContext, contextID string) card.Card {
	text := rc.Text()
	opts := []card.Option{
		card.WithBackendID(cart.CartID),
		card.WithTitle(text("servicenow.object.cart.title")),
		card.WithContextID(contextID),
		card.WithWorkflowID(WorkflowCart),
	}

	if len(cart.Items) == 0 {
		opts = append(opts, card.WithField(card.General("", text("servicenow.cart.description.empty"))))
		return card.New(opts...)
	}

	opts = append(opts,
		card.WithField(card.General(text("servicenow.cart.field.items"), text("servicenow.cart.description", len(cart.Items)))),
		card.WithActions(
			card.NewAction(http.MethodDelete, rc.ActionURL("api/v1/cart"),
				card.WithLabel(text("servicenow.emptyCart.title"), text("servicenow.emptyCart.description"))),
			card.NewAction(http.MethodPost, rc.ActionURL("api/v1/checkout"),
				card.WithLabel(text("servicenow.checkout.title"), text("servicenow.checkout.description"))),
		),
	)
	for _, item := range cart.Items {
		opts = append(opts, card.WithChildren(cartItemCard(item, rc, contextID)))
	}
	return card.New(opts...)
}

func cartItemCard(item CartItem, rc hub.RequestContext, contextID string) card.Card {
	text := rc.Text()
	return card.New(
		card.WithBackendID(item.EntryID),
		card.WithTitle(item.Name),
		card.WithDescription(item.ShortDescription),
		card.WithImage(itemImage(rc.BaseURL, item.Picture)),
		card.WithField(card.General(text("servicenow.cart.field.quantity"), item.Quantity.String())),
		card.WithContextID(contextID),
		card.WithWorkflowID(WorkflowCart),
		card.WithActions(card.NewAction(http.MethodDelete, rc.ActionURL("api/v1/cart", item.EntryID),
			card.WithLabel(text("servicenow.removeFromCart.title"), text("servicenow.removeFromCart.description")))),
	)
}

// TaskCards renders one card per task, each with a deleteTicket action. A
// full page gets a trailing card pointing at the instance for the rest.
func TaskCards(tasks []Task, rc hub.RequestContext, pageLimit int, uiType string) []card.Card {
	text := rc.Text()
	cards := make([]card.Card, 0, len(tasks)+1)
	for _, task := range tasks {
		cards = append(cards, card.New(
			card.WithBackendID(task.SysID),
			card.WithTitle(text("servicenow.task.title", task.Number)),
			card.WithSubtitle(task.State.String()),
			card.WithDescription(task.ShortDescription),
			card.WithURL(backendLink(rc.BaseURL, "task.do", url.Values{"sys_id": {task.SysID}})),
			card.WithType(uiType),
			card.WithWorkflowID(WorkflowViewTask),
			card.WithFields(
				card.General(text("servicenow.task.field.state"), task.State.String()),
				card.General(text("servicenow.task.field.priority"), task.Priority.String()),
				card.General(text("servicenow.task.field.opened"), task.OpenedAt),
				card.General(text("servicenow.task.field.assignedTo"), task.AssignedTo.String()),
			),
			card.WithActions(card.NewAction(http.MethodDelete, rc.ActionURL("api/v1/tasks", task.SysID),
				card.WithLabel(text("servicenow.deleteTicket.title"), text("servicenow.deleteTicket.description")))),
		))
	}
	if pageLimit > 0 && len(tasks) == pageLimit {
		cards = append(cards, card.New(card.WithTitle(text("servicenow.view.task.msg", rc.BaseURL))))
	}
	return cards
}

func createTaskAction(taskType string, rc hub.RequestContext) card.Action {
	text := rc.Text()
	return card.NewAction(http.MethodPost, rc.ActionURL("api/v1/task/create"),
		card.WithLabel(text("servicenow.createTaskAction.title"), text("servicenow.createTaskAction.description")),
		card.WithParam("type", taskType),
		card.WithUserInput(card.UserInput{
			ID:        "shortDescription",
			Label:     text("servicenow.createTaskAction.shortDescription.label"),
			Format:    card.FormatTextarea,
			MinLength: 1,
			MaxLength: shortDescriptionMaxLength,
		}),
	)
}

// DiscoveryCard advertises the bot flows: filing a ticket of taskType,
// listing the caller's tickets and reading one ticket by number.
func DiscoveryCard(taskType string, rc hub.RequestContext) card.Card {
	text := rc.Text()
	tasksURL := rc.ActionURL("api/v1/tasks")

	fileTicket := card.New(
		card.WithTitle(text("servicenow.createTaskObject.title")),
		card.WithDescription(text("servicenow.createTaskObject.description", taskType)),
		card.WithWorkflowID(WorkflowCreateTask),
		card.WithActions(createTaskAction(taskType, rc)),
	)
	myTickets := card.New(
		card.WithTitle(text("servicenow.viewMyTasks.title")),
		card.WithDescription(text("servicenow.viewMyTasks.description")),
		card.WithWorkflowID(WorkflowViewTask),
		card.WithActions(card.NewAction(http.MethodPost, tasksURL,
			card.WithLabel(text("servicenow.viewMyTasks.title"), text("servicenow.viewMyTasks.description")))),
	)
	byNumber := card.New(
		card.WithTitle(text("servicenow.viewTaskByNumber.title")),
		card.WithDescription(text("servicenow.viewTaskByNumber.description")),
		card.WithWorkflowID(WorkflowViewTaskByNumber),
		card.WithActions(card.NewAction(http.MethodPost, tasksURL,
			card.WithLabel(text("servicenow.viewTaskByNumber.title"), text("servicenow.viewTaskByNumber.description")),
			card.WithUserInput(card.UserInput{
				ID:        "number",
				Label:     text("servicenow.viewTaskByNumber.number.label"),
				Format:    card.FormatTextarea,
				MinLength: 1,
			}))),
	)

	return card.New(
		card.WithTitle(text("servicenow.discovery.title")),
		card.WithDescription(text("servicenow.discovery.description")),
		card.WithWorkflowID(WorkflowCreateTask),
		card.WithActions(createTaskAction(taskType, rc)),
		card.WithChildren(fileTicket, myTickets, byNumber),
	)
}
