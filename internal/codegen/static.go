package codegen

import "github.com/DeusData/endpointgen/internal/sink"

// storeSource and invalidateSource do not depend on the descriptor set.

const storeSource = sink.Header + "\n" + `import { configureStore } from "@reduxjs/toolkit";
import { setupListeners } from "@reduxjs/toolkit/query";
import { api } from "./api";

export const store = configureStore({
  reducer: {
    [api.reducerPath]: api.reducer,
  },
  middleware: (getDefaultMiddleware) => getDefaultMiddleware().concat(api.middleware),
});

setupListeners(store.dispatch);

export type RootState = ReturnType<typeof store.getState>;
export type AppDispatch = typeof store.dispatch;
`

const invalidateSource = sink.Header + "\n" + `import { api } from "./api";
import { store } from "./store";

type Tags = Parameters<typeof api.util.invalidateTags>[0];

export function invalidate(...tags: Tags): void {
  store.dispatch(api.util.invalidateTags(tags));
}

export function invalidateAll(): void {
  store.dispatch(api.util.resetApiState());
}
`
