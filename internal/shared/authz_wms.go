package shared

// Warehouse permissions.
const (
	PermCatalogView = "catalog.view"
	PermCatalogEdit = "catalog.edit"

	PermInventoryView = "inventory.view"
	PermInventoryEdit = "inventory.edit"

	PermSalesOrderView    = "sales.order.view"
	PermSalesOrderCreate  = "sales.order.create"
	PermSalesOrderEdit    = "sales.order.edit"
	PermSalesOrderDelete  = "sales.order.delete"
	PermSalesOrderFulfill = "sales.order.fulfill"

	PermProductionView = "production.view"
	PermProductionEdit = "production.edit"

	PermPurchaseView = "procurement.po.view"
	PermPurchaseEdit = "procurement.po.edit"

	PermDashboardView = "dashboard.view"
)

// Roles recognised by the warehouse service.
const (
	RoleAdmin          = "admin"
	RoleManager        = "manager"
	RoleWarehouseStaff = "warehouse_staff"
	RoleCustomer       = "customer"
)

// CatalogScopes lists master data permissions.
func CatalogScopes() []string {
	return []string{PermCatalogView, PermCatalogEdit}
}

// InventoryScopes lists ledger permissions.
func InventoryScopes() []string {
	return []string{PermInventoryView, PermInventoryEdit}
}

// SalesScopes lists sales order permissions.
func SalesScopes() []string {
	return []string{
		PermSalesOrderView,
		PermSalesOrderCreate,
		PermSalesOrderEdit,
		PermSalesOrderDelete,
		PermSalesOrderFulfill,
	}
}

// ProductionScopes lists production permissions.
func ProductionScopes() []string {
	return []string{PermProductionView, PermProductionEdit}
}

// PurchaseScopes lists purchase order permissions.
func PurchaseScopes() []string {
	return []string{PermPurchaseView, PermPurchaseEdit}
}
