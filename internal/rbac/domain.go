package rbac

import "github.com/odyssey-erp/odyssey-wms/internal/shared"

// Role names a permission grouping.
type Role string

// DefaultGrants is the built-in role to permission mapping.
func DefaultGrants() map[Role][]string {
	staff := []string{
		shared.PermCatalogView,
		shared.PermInventoryView,
		shared.PermInventoryEdit,
		shared.PermSalesOrderView,
		shared.PermSalesOrderCreate,
		shared.PermSalesOrderEdit,
		shared.PermSalesOrderFulfill,
		shared.PermProductionView,
		shared.PermProductionEdit,
		shared.PermPurchaseView,
		shared.PermPurchaseEdit,
	}
	all := append([]string{}, shared.CatalogScopes()...)
	all = append(all, shared.InventoryScopes()...)
	all = append(all, shared.SalesScopes()...)
	all = append(all, shared.ProductionScopes()...)
	all = append(all, shared.PurchaseScopes()...)
	all = append(all, shared.PermDashboardView)

	return map[Role][]string{
		shared.RoleAdmin:          all,
		shared.RoleManager:        all,
		shared.RoleWarehouseStaff: staff,
		shared.RoleCustomer: {
			shared.PermCatalogView,
			shared.PermSalesOrderView,
			shared.PermSalesOrderCreate,
			shared.PermSalesOrderEdit,
		},
	}
}
